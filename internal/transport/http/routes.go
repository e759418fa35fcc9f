package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type createGameRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

type createGameResponse struct {
	GameID string `json:"gameId"`
	PIN    string `json:"pin"`
}

// NewRouter mounts the websocket gateway and the REST endpoints the
// surrounding application uses to open games and read results.
func NewRouter(service *app.GameService, ws *WSHandler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)
	r.Post("/games", handleCreateGame(service, logger))
	r.Get("/games/{id}", handleGetGame(service, logger))
	r.Get("/hosts/{hostID}/games", handleHostHistory(service, logger))
	return r
}

func handleCreateGame(service *app.GameService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.QuizID = strings.TrimSpace(req.QuizID)
		req.HostID = strings.TrimSpace(req.HostID)
		if req.QuizID == "" || req.HostID == "" {
			writeError(w, http.StatusBadRequest, "quizId and hostId are required")
			return
		}

		session, err := service.CreateSession(r.Context(), req.QuizID, req.HostID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, createGameResponse{GameID: session.ID, PIN: session.PIN})
	}
}

func handleGetGame(service *app.GameService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := service.Session(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"game": session})
	}
}

func handleHostHistory(service *app.GameService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := service.History(r.Context(), chi.URLParam(r, "hostID"))
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		if sessions == nil {
			sessions = []domain.Session{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": sessions})
	}
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.CodeConflict:
		writeError(w, http.StatusConflict, err.Error())
	case domain.CodeInvalid:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
