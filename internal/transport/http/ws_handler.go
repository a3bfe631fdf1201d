package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"quiz-engine/internal/app"
	"quiz-engine/internal/auth"
	"quiz-engine/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WSHandler streams game events to hosts, players and spectators.
// A connection without a token may watch but not answer.
type WSHandler struct {
	service  *app.GameService
	tokens   *auth.Issuer
	log      *slog.Logger
	top      int
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, tokens *auth.Issuer, log *slog.Logger, top int) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		service: service,
		tokens:  tokens,
		log:     log,
		top:     top,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
	LatencyMs  int    `json:"latencyMs"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the request, subscribes to the game and then sends the
// snapshot, so no event between the two is lost.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: "missing gameId"})
		return
	}
	var claims *auth.Claims
	if token := r.URL.Query().Get("token"); token != "" {
		c, err := h.tokens.Verify(token)
		if err == nil && c.GameID != gameID {
			err = domain.ErrUnauthorized
		}
		if err != nil {
			writeError(w, h.log, r, err)
			return
		}
		claims = &c
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	updates, unsubscribe, err := h.service.Subscribe(ctx, gameID)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "game_id", gameID, "err", err)
		return
	}
	log := h.log.With("game_id", gameID)
	if claims != nil && claims.Role == auth.RolePlayer {
		log = log.With("player_id", claims.PlayerID)
	}

	send := make(chan outboundMessage, 32)
	writerDone := make(chan struct{})
	go h.writeLoop(conn, send, ctx.Done(), writerDone, log)

	enqueue := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	h.sendSnapshot(ctx, gameID, enqueue)
	go func() {
		for ev := range updates {
			enqueue(outboundMessage{Type: "event", Payload: ev})
		}
		// closed by unsubscribe or because this client fell behind
		cancel()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			enqueue(h.answer(ctx, claims, inbound.Payload))
		case "refresh":
			h.sendSnapshot(ctx, gameID, enqueue)
		default:
			enqueue(errorMessage(errorBody{Code: "unsupported_message", Message: "unsupported message type"}))
		}
	}

	cancel()
	<-writerDone
}

func (h *WSHandler) sendSnapshot(ctx context.Context, gameID string, enqueue func(outboundMessage)) {
	snapshot, err := h.service.Snapshot(ctx, gameID, h.top)
	if err != nil {
		_, body := errorFor(err)
		enqueue(errorMessage(body))
		return
	}
	enqueue(outboundMessage{Type: "snapshot", Payload: snapshot})
}

func (h *WSHandler) answer(ctx context.Context, claims *auth.Claims, raw json.RawMessage) outboundMessage {
	if claims == nil || claims.Role != auth.RolePlayer {
		_, body := errorFor(domain.ErrUnauthorized)
		return errorMessage(body)
	}
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage(errorBody{Code: "bad_request", Message: "invalid answer payload"})
	}
	result, err := h.service.SubmitAnswer(ctx, app.SubmitInput{
		PlayerID:   claims.PlayerID,
		QuestionID: payload.QuestionID,
		Option:     payload.Option,
		LatencyMs:  payload.LatencyMs,
	})
	if err != nil {
		_, body := errorFor(err)
		return errorMessage(body)
	}
	return outboundMessage{Type: "answerResult", Payload: result}
}

// writeLoop is the only goroutine writing to conn.
func (h *WSHandler) writeLoop(conn *websocket.Conn, send <-chan outboundMessage, done <-chan struct{}, finished chan<- struct{}, log *slog.Logger) {
	defer close(finished)
	defer conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func errorMessage(body errorBody) outboundMessage {
	return outboundMessage{Type: "error", Payload: body}
}
