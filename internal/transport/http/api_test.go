package http

import (
	"net/http"
	"testing"

	"quiz-engine/internal/domain"
)

func TestGameFlowOverREST(t *testing.T) {
	server := newTestServer(t)
	base := server.URL

	created := createGame(t, base)
	gameID := created.Game.ID
	if created.Game.Status != domain.StatusWaiting || len(created.Game.PIN) != domain.PINLength {
		t.Fatalf("unexpected created game %+v", created.Game)
	}

	ana := joinGame(t, base, created.Game.PIN, "Ana")
	leo := joinGame(t, base, created.Game.PIN, "Leo")
	if ana.Snapshot.Game.ID != gameID {
		t.Fatalf("join snapshot for wrong game: %+v", ana.Snapshot.Game)
	}

	var game domain.Game
	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/start", ana.PlayerToken, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("player must not start the game, got %d", status)
	}
	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/start", created.HostToken, nil, &game); status != http.StatusOK {
		t.Fatalf("start: status %d", status)
	}
	if game.Status != domain.StatusInProgress || game.CurrentIndex != 0 {
		t.Fatalf("unexpected started game %+v", game)
	}

	q1 := currentQuestionID(t, base, gameID)
	var result domain.AnswerResult
	if status := submit(t, base, gameID, ana.PlayerToken, q1, 1, 5000, &result); status != http.StatusOK {
		t.Fatalf("ana answer: status %d", status)
	}
	if result.Answer.Points != 875 || result.TotalScore != 875 {
		t.Fatalf("expected 875 for ana, got %+v", result)
	}
	if status := submit(t, base, gameID, leo.PlayerToken, q1, 0, 3000, &result); status != http.StatusOK {
		t.Fatalf("leo answer: status %d", status)
	}
	if result.Answer.Points != 0 || result.Answer.Correct {
		t.Fatalf("expected wrong answer for leo, got %+v", result)
	}

	var dup errorBody
	if status := submit(t, base, gameID, ana.PlayerToken, q1, 1, 100, &dup); status != http.StatusConflict || dup.Code != "answer_already_submitted" {
		t.Fatalf("expected duplicate conflict, got %d %+v", status, dup)
	}
	if status := submit(t, base, gameID, created.HostToken, q1, 1, 100, nil); status != http.StatusUnauthorized {
		t.Fatalf("host must not answer, got %d", status)
	}

	var reveal domain.Reveal
	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/reveal", created.HostToken, nil, &reveal); status != http.StatusOK {
		t.Fatalf("reveal: status %d", status)
	}
	if reveal.Tally.Answered != 2 || len(reveal.Tally.Options) != 3 || reveal.Tally.Options[2].Count != 0 {
		t.Fatalf("unexpected tally %+v", reveal.Tally)
	}

	advance(t, base, gameID, created.HostToken, 1, http.StatusOK)
	again := advance(t, base, gameID, created.HostToken, 1, http.StatusOK)
	if again.CurrentIndex != 1 {
		t.Fatalf("repeated advance must be a no-op, got index %d", again.CurrentIndex)
	}
	var late errorBody
	if status := submit(t, base, gameID, leo.PlayerToken, q1, 1, 100, &late); status != http.StatusConflict || late.Code != domain.CodeOf(domain.ErrQuestionNotActive) {
		t.Fatalf("expected question_not_active for retroactive answer, got %d %+v", status, late)
	}

	q2 := currentQuestionID(t, base, gameID)
	if status := submit(t, base, gameID, ana.PlayerToken, q2, 0, 15000, &result); status != http.StatusOK {
		t.Fatalf("ana second answer: status %d", status)
	}
	if result.Answer.Points != 400 || result.TotalScore != 1275 {
		t.Fatalf("expected 400 and total 1275, got %+v", result)
	}
	advance(t, base, gameID, created.HostToken, 2, http.StatusUnprocessableEntity)

	var board domain.Leaderboard
	if status := call(t, http.MethodGet, base+"/games/"+gameID+"/leaderboard?top=1", "", nil, &board); status != http.StatusOK {
		t.Fatalf("leaderboard: status %d", status)
	}
	if len(board.Entries) != 1 || board.Entries[0].DisplayName != "Ana" || board.Entries[0].Score != 1275 || board.Total != 2 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/finish", created.HostToken, nil, &game); status != http.StatusOK || game.Status != domain.StatusFinished {
		t.Fatalf("finish: status %d game %+v", status, game)
	}
	var joinErr errorBody
	status := call(t, http.MethodPost, base+"/games/join", "", map[string]any{"pin": created.Game.PIN, "displayName": "Mia"}, &joinErr)
	if status != http.StatusConflict || joinErr.Code != domain.CodeOf(domain.ErrGameFinished) {
		t.Fatalf("expected game finished on join, got %d %+v", status, joinErr)
	}

	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/restart", created.HostToken, nil, &game); status != http.StatusOK {
		t.Fatalf("restart: status %d", status)
	}
	if game.Status != domain.StatusWaiting || game.Epoch != 1 || game.CurrentIndex != domain.NoQuestion {
		t.Fatalf("unexpected restarted game %+v", game)
	}
	call(t, http.MethodGet, base+"/games/"+gameID+"/leaderboard", "", nil, &board)
	for _, e := range board.Entries {
		if e.Score != 0 {
			t.Fatalf("expected scores reset, got %+v", board.Entries)
		}
	}
}

func TestReplayIssuesNewHostToken(t *testing.T) {
	server := newTestServer(t)
	base := server.URL
	created := createGame(t, base)
	joinGame(t, base, created.Game.PIN, "Ana")

	if status := call(t, http.MethodPost, base+"/games/"+created.Game.ID+"/replay", created.HostToken, nil, nil); status != http.StatusConflict {
		t.Fatalf("replay before finish must conflict, got %d", status)
	}
	call(t, http.MethodPost, base+"/games/"+created.Game.ID+"/start", created.HostToken, nil, nil)
	call(t, http.MethodPost, base+"/games/"+created.Game.ID+"/finish", created.HostToken, nil, nil)

	var replayed hostedGameResponse
	if status := call(t, http.MethodPost, base+"/games/"+created.Game.ID+"/replay", created.HostToken, nil, &replayed); status != http.StatusCreated {
		t.Fatalf("replay: status %d", status)
	}
	if replayed.Game.ID == created.Game.ID || replayed.Game.QuestionCount != 2 || replayed.Game.Status != domain.StatusWaiting {
		t.Fatalf("unexpected replayed game %+v", replayed.Game)
	}
	if status := call(t, http.MethodPost, base+"/games/"+replayed.Game.ID+"/start", created.HostToken, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("old host token must not control the new game, got %d", status)
	}
	if status := call(t, http.MethodPost, base+"/games/"+replayed.Game.ID+"/start", replayed.HostToken, nil, nil); status != http.StatusConflict {
		t.Fatalf("start without players must be rejected, got %d", status)
	}
}

func TestErrorResponses(t *testing.T) {
	server := newTestServer(t)
	base := server.URL

	var body errorBody
	if status := call(t, http.MethodGet, base+"/games/missing", "", nil, &body); status != http.StatusNotFound || body.Code != "game_not_found" {
		t.Fatalf("expected 404 game_not_found, got %d %+v", status, body)
	}
	if status := call(t, http.MethodPost, base+"/games/join", "", map[string]any{"pin": "000001", "displayName": "Ana"}, &body); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pin, got %d", status)
	}
	if status := call(t, http.MethodPost, base+"/games", "", map[string]any{"title": "empty"}, &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty question set, got %d", status)
	}
	if status := call(t, http.MethodPost, base+"/games", "", map[string]any{"bogus": true}, &body); status != http.StatusBadRequest || body.Code != "bad_request" {
		t.Fatalf("expected 400 bad_request for unknown field, got %d %+v", status, body)
	}
	created := createGame(t, base)
	if status := call(t, http.MethodGet, base+"/games/"+created.Game.ID+"/leaderboard?top=x", "", nil, &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad top, got %d", status)
	}
	if status := call(t, http.MethodPost, base+"/games/"+created.Game.ID+"/advance", created.HostToken, map[string]any{}, &body); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing target, got %d", status)
	}

	joinGame(t, base, created.Game.PIN, "Ana")
	var dup errorBody
	status := call(t, http.MethodPost, base+"/games/join", "", map[string]any{"pin": created.Game.PIN, "displayName": "Ana"}, &dup)
	if status != http.StatusConflict || dup.Code != domain.CodeOf(domain.ErrNameTaken) {
		t.Fatalf("expected name taken conflict, got %d %+v", status, dup)
	}
}

func submit(t *testing.T, base, gameID, token, questionID string, option, latencyMs int, out any) int {
	t.Helper()
	return call(t, http.MethodPost, base+"/games/"+gameID+"/answers", token, map[string]any{
		"questionId": questionID,
		"option":     option,
		"latencyMs":  latencyMs,
	}, out)
}

func advance(t *testing.T, base, gameID, token string, target, wantStatus int) domain.Game {
	t.Helper()
	var game domain.Game
	var out any = &game
	if wantStatus != http.StatusOK {
		out = &errorBody{}
	}
	if status := call(t, http.MethodPost, base+"/games/"+gameID+"/advance", token, map[string]any{"target": target}, out); status != wantStatus {
		t.Fatalf("advance to %d: expected %d, got %d", target, wantStatus, status)
	}
	return game
}
