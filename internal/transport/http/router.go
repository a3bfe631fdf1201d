package http

import (
	"log/slog"
	"net/http"

	"quiz-engine/internal/app"
	"quiz-engine/internal/auth"
)

// NewRouter wires the REST API, the WebSocket endpoint and the health check.
func NewRouter(service *app.GameService, tokens *auth.Issuer, log *slog.Logger, top int) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	NewAPI(service, tokens, log, top).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(service, tokens, log, top).ServeWS)
	return mux
}
