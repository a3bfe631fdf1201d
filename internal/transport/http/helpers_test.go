package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-engine/internal/app"
	"quiz-engine/internal/auth"
	"quiz-engine/internal/domain"
	"quiz-engine/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	cache := memory.NewQuestionCache(store, time.Minute)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewGameService(store, cache, memory.NewHub(0), app.WithLogger(log))
	tokens, err := auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	server := httptest.NewServer(NewRouter(service, tokens, log, 10))
	t.Cleanup(server.Close)
	return server
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Text:         "What is 2 + 2?",
			Options:      []domain.Option{{Text: "3"}, {Text: "4"}, {Text: "5"}},
			CorrectIndex: 1,
			Points:       1000,
			TimeLimitMs:  20000,
		},
		{
			Text:         "Capital of France?",
			Options:      []domain.Option{{Text: "Paris"}, {Text: "Rome"}},
			CorrectIndex: 0,
			Points:       800,
			TimeLimitMs:  15000,
		},
	}
}

// call sends body as JSON and decodes the response into out when non-nil.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

type hostedGameResponse struct {
	Game      domain.Game `json:"game"`
	HostToken string      `json:"hostToken"`
}

type joinedResponse struct {
	Player      domain.Player   `json:"player"`
	Snapshot    domain.Snapshot `json:"snapshot"`
	PlayerToken string          `json:"playerToken"`
}

func createGame(t *testing.T, base string) hostedGameResponse {
	t.Helper()
	var created hostedGameResponse
	status := call(t, http.MethodPost, base+"/games", "", map[string]any{
		"title":     "Friday quiz",
		"questions": sampleQuestions(),
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create game: status %d", status)
	}
	return created
}

func joinGame(t *testing.T, base, pin, name string) joinedResponse {
	t.Helper()
	var joined joinedResponse
	status := call(t, http.MethodPost, base+"/games/join", "", map[string]any{
		"pin":         pin,
		"displayName": name,
	}, &joined)
	if status != http.StatusCreated {
		t.Fatalf("join %s: status %d", name, status)
	}
	return joined
}

func currentQuestionID(t *testing.T, base, gameID string) string {
	t.Helper()
	var snapshot domain.Snapshot
	if status := call(t, http.MethodGet, base+"/games/"+gameID, "", nil, &snapshot); status != http.StatusOK {
		t.Fatalf("snapshot: status %d", status)
	}
	if snapshot.Question == nil {
		t.Fatalf("expected a current question in %+v", snapshot.Game)
	}
	return snapshot.Question.ID
}
