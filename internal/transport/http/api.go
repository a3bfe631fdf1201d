package http

import (
	"log/slog"
	"net/http"

	"quiz-engine/internal/app"
	"quiz-engine/internal/auth"
	"quiz-engine/internal/domain"
)

// API serves the REST surface of the engine.
type API struct {
	service *app.GameService
	tokens  *auth.Issuer
	log     *slog.Logger
	top     int
}

func NewAPI(service *app.GameService, tokens *auth.Issuer, log *slog.Logger, top int) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{service: service, tokens: tokens, log: log, top: top}
}

// Register mounts the REST routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /games", a.createGame)
	mux.HandleFunc("POST /games/join", a.join)
	mux.HandleFunc("GET /games/{id}", a.snapshot)
	mux.HandleFunc("GET /games/{id}/leaderboard", a.leaderboard)
	mux.HandleFunc("POST /games/{id}/start", a.host(a.start))
	mux.HandleFunc("POST /games/{id}/advance", a.host(a.advance))
	mux.HandleFunc("POST /games/{id}/finish", a.host(a.finish))
	mux.HandleFunc("POST /games/{id}/restart", a.host(a.restart))
	mux.HandleFunc("POST /games/{id}/replay", a.host(a.replay))
	mux.HandleFunc("POST /games/{id}/reveal", a.host(a.reveal))
	mux.HandleFunc("POST /games/{id}/answers", a.submitAnswer)
}

type createGameRequest struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

type hostedGame struct {
	Game      domain.Game `json:"game"`
	HostToken string      `json:"hostToken"`
}

func (a *API) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, r, err)
		return
	}
	game, err := a.service.CreateGame(r.Context(), app.CreateGameInput{Title: req.Title, Questions: req.Questions})
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	a.writeHosted(w, r, game)
}

func (a *API) writeHosted(w http.ResponseWriter, r *http.Request, game domain.Game) {
	token, err := a.tokens.IssueHost(game.ID)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hostedGame{Game: game, HostToken: token})
}

type joinRequest struct {
	PIN         string  `json:"pin"`
	DisplayName string  `json:"displayName"`
	UserID      *string `json:"userId,omitempty"`
}

type joinResponse struct {
	app.JoinResult
	PlayerToken string `json:"playerToken"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, r, err)
		return
	}
	result, err := a.service.Join(r.Context(), app.JoinInput{PIN: req.PIN, DisplayName: req.DisplayName, UserID: req.UserID})
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	token, err := a.tokens.IssuePlayer(result.Player.GameID, result.Player.ID)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{JoinResult: result, PlayerToken: token})
}

func (a *API) snapshot(w http.ResponseWriter, r *http.Request) {
	top, err := topParam(r, a.top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	snapshot, err := a.service.Snapshot(r.Context(), r.PathValue("id"), top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	top, err := topParam(r, a.top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	board, err := a.service.Leaderboard(r.Context(), r.PathValue("id"), top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// host wraps handlers that require the host token of the game in the path.
func (a *API) host(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := r.PathValue("id")
		claims, err := a.tokens.Verify(bearerToken(r))
		if err == nil {
			err = auth.Authorize(claims, auth.RoleHost, gameID)
		}
		if err != nil {
			writeError(w, a.log, r, err)
			return
		}
		next(w, r, gameID)
	}
}

func (a *API) start(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := a.service.Start(r.Context(), gameID)
	a.writeGame(w, r, game, err)
}

type advanceRequest struct {
	Target *int `json:"target"`
}

func (a *API) advance(w http.ResponseWriter, r *http.Request, gameID string) {
	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, r, err)
		return
	}
	if req.Target == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "target is required"})
		return
	}
	game, err := a.service.Advance(r.Context(), gameID, *req.Target)
	a.writeGame(w, r, game, err)
}

func (a *API) finish(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := a.service.Finish(r.Context(), gameID)
	a.writeGame(w, r, game, err)
}

func (a *API) restart(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := a.service.Restart(r.Context(), gameID)
	a.writeGame(w, r, game, err)
}

func (a *API) replay(w http.ResponseWriter, r *http.Request, gameID string) {
	game, err := a.service.Replay(r.Context(), gameID)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	a.writeHosted(w, r, game)
}

func (a *API) reveal(w http.ResponseWriter, r *http.Request, gameID string) {
	top, err := topParam(r, a.top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	reveal, err := a.service.Reveal(r.Context(), gameID, top)
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reveal)
}

func (a *API) writeGame(w http.ResponseWriter, r *http.Request, game domain.Game, err error) {
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Option     *int   `json:"option"`
	LatencyMs  int    `json:"latencyMs"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	claims, err := a.tokens.Verify(bearerToken(r))
	if err == nil {
		err = auth.Authorize(claims, auth.RolePlayer, gameID)
	}
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, r, err)
		return
	}
	if req.Option == nil {
		writeError(w, a.log, r, domain.ErrInvalidOption)
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), app.SubmitInput{
		PlayerID:   claims.PlayerID,
		QuestionID: req.QuestionID,
		Option:     *req.Option,
		LatencyMs:  req.LatencyMs,
	})
	if err != nil {
		writeError(w, a.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
