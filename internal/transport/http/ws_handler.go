package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(service *app.GameService, hub *Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type pinPayload struct {
	PIN string `json:"pin"`
}

type joinPayload struct {
	PIN      string `json:"pin"`
	Nickname string `json:"nickname"`
}

type resumePayload struct {
	PIN      string `json:"pin"`
	PlayerID string `json:"playerId"`
}

type answerPayload struct {
	PIN           string `json:"pin"`
	PlayerID      string `json:"playerId"`
	AnswerIndex   int    `json:"answerIndex"`
	TimeLeft      int    `json:"timeLeft"`
	QuestionIndex *int   `json:"questionIndex"`
}

// ServeWS upgrades HTTP requests to websockets and feeds client messages to
// the game service. A connection announces itself with HOST_JOIN_GAME,
// PLAYER_JOIN or PLAYER_RESUME; nothing is inferred from the connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newClient(uuid.NewString(), conn, h.hub, h.logger)
	go c.writePump()
	defer func() {
		h.hub.leave(c)
		c.close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(r.Context(), c, inbound)
	}
}

// dispatch handles one inbound message. Failures stay scoped to the message:
// the sender gets an ERROR event and the connection keeps going.
func (h *WSHandler) dispatch(ctx context.Context, c *client, msg inboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic handling message", "event", msg.Type, "client", c.id, "panic", rec)
			c.Send(domain.ErrorEvent(fmt.Errorf("panic: %v", rec)))
		}
	}()

	if err := h.handle(ctx, c, msg); err != nil {
		if domain.CodeOf(err) == domain.CodeInternal {
			h.logger.Error("message failed", "event", msg.Type, "client", c.id, "err", err)
		}
		c.Send(domain.ErrorEvent(err))
	}
}

func (h *WSHandler) handle(ctx context.Context, c *client, msg inboundMessage) error {
	switch msg.Type {
	case domain.EventHostJoinGame:
		pin, err := decodePIN(msg.Payload)
		if err != nil {
			return err
		}
		if err := h.service.HostAttach(ctx, c, pin); err != nil {
			return err
		}
		c.hostPIN = pin
		return nil

	case domain.EventStartGame, domain.EventNextQuestion, domain.EventShowLeaderboard:
		pin, err := decodePIN(msg.Payload)
		if err != nil {
			return err
		}
		if c.hostPIN != pin {
			return domain.ErrNotHost
		}
		switch msg.Type {
		case domain.EventStartGame:
			return h.service.Start(ctx, pin)
		case domain.EventNextQuestion:
			return h.service.Advance(ctx, pin)
		default:
			return h.service.ShowLeaderboard(ctx, pin)
		}

	case domain.EventPlayerJoin:
		var payload joinPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		ack, err := h.service.Join(ctx, c, payload.PIN, payload.Nickname)
		if err != nil {
			return err
		}
		c.playerPIN, c.playerID = ack.PIN, ack.PlayerID
		return nil

	case domain.EventPlayerResume:
		var payload resumePayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		if payload.PlayerID == "" {
			return fmt.Errorf("%w: playerId required", domain.ErrInvalidRequest)
		}
		resp, err := h.service.Resume(ctx, c, payload.PIN, payload.PlayerID)
		if err != nil {
			return err
		}
		c.playerPIN, c.playerID = resp.PIN, resp.PlayerID
		return nil

	case domain.EventSubmitAnswer:
		var payload answerPayload
		if err := decode(msg.Payload, &payload); err != nil {
			return err
		}
		playerID := payload.PlayerID
		if playerID == "" && c.playerPIN == payload.PIN {
			playerID = c.playerID
		}
		return h.service.SubmitAnswer(ctx, c, payload.PIN, playerID, domain.AnswerSubmission{
			AnswerIndex:   payload.AnswerIndex,
			TimeLeft:      payload.TimeLeft,
			QuestionIndex: payload.QuestionIndex,
		})

	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidRequest, msg.Type)
	}
}

// decodePIN accepts either a bare JSON string or {"pin": "..."}.
func decodePIN(raw json.RawMessage) (string, error) {
	var pin string
	if err := json.Unmarshal(raw, &pin); err == nil && pin != "" {
		return pin, nil
	}
	var payload pinPayload
	if err := json.Unmarshal(raw, &payload); err == nil && payload.PIN != "" {
		return payload.PIN, nil
	}
	return "", fmt.Errorf("%w: pin required", domain.ErrInvalidRequest)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
