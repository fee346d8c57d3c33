package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/PabloGalante/tavern-agent/internal/app/chronicle"
	"github.com/PabloGalante/tavern-agent/internal/app/session"
	"github.com/PabloGalante/tavern-agent/internal/domain"
	"github.com/PabloGalante/tavern-agent/internal/observability"
)

type Server struct {
	sessions  *session.Registry
	chronicle *chronicle.Service
}

func NewServer(sessions *session.Registry, chron *chronicle.Service) http.Handler {
	s := &Server{sessions: sessions, chronicle: chron}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.withSession(s.handleGetSession))

	// settings
	mux.HandleFunc("PUT /sessions/{id}/credential", s.withSession(s.handleSetCredential))
	mux.HandleFunc("PUT /sessions/{id}/model", s.withSession(s.handleUpdateModel))
	mux.HandleFunc("PUT /sessions/{id}/setup", s.withSession(s.handleUpdateSetup))
	mux.HandleFunc("PUT /sessions/{id}/companions/count", s.withSession(s.handleCompanionCount))
	mux.HandleFunc("PUT /sessions/{id}/companions/{companionID}", s.withSession(s.handleUpdateCompanion))
	mux.HandleFunc("PUT /sessions/{id}/character-card", s.withSession(s.handleCharacterCard))

	// setup phase
	mux.HandleFunc("POST /sessions/{id}/setup/messages", s.withSession(s.handleSetupMessage))
	mux.HandleFunc("POST /sessions/{id}/setup/character", s.withSession(s.handleGenerateCharacter))
	mux.HandleFunc("POST /sessions/{id}/setup/companions", s.withSession(s.handleGenerateCompanions))

	// transitions
	mux.HandleFunc("POST /sessions/{id}/enter", s.withSession(s.handleEnter))
	mux.HandleFunc("POST /sessions/{id}/resume", s.withSession(s.handleResume))
	mux.HandleFunc("POST /sessions/{id}/exit", s.withSession(s.handleExit))
	mux.HandleFunc("POST /sessions/{id}/new-game", s.withSession(s.handleNewGame))
	mux.HandleFunc("POST /sessions/{id}/clear", s.withSession(s.handleClear))

	// play phase
	mux.HandleFunc("POST /sessions/{id}/messages", s.withSession(s.handleMessage))
	mux.HandleFunc("POST /sessions/{id}/companions/act", s.withSession(s.handleCompanionsAct))
	mux.HandleFunc("GET /sessions/{id}/events", s.withSession(s.handleEvents))

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type textRequest struct {
	Text string `json:"text"`
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type countRequest struct {
	Count int `json:"count"`
}

type turnResponse struct {
	Turn *domain.Turn `json:"turn"`
}

type turnsResponse struct {
	Turns []domain.Turn `json:"turns"`
}

type eventsResponse struct {
	Events []*domain.GameEvent `json:"events"`
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves {id} before calling h.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(domain.SessionID(r.PathValue("id")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		h(w, r, sess)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSetCredential(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req credentialRequest
	if !decode(w, r, &req) {
		return
	}
	if err := sess.SetCredential(r.Context(), req.APIKey); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req modelRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Model == "" {
		badRequest(w, "model is required")
		return
	}
	if err := sess.UpdateModel(req.Model); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSetup(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req session.SetupFields
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, sess.UpdateSetup(req))
}

func (s *Server) handleCompanionCount(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req countRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, sess.UpdateCompanionCount(req.Count))
}

func (s *Server) handleUpdateCompanion(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req domain.Companion
	if !decode(w, r, &req) {
		return
	}
	c, err := sess.UpdateCompanion(r.PathValue("companionID"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCharacterCard(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var card *domain.CharacterCard
	if !decode(w, r, &card) {
		return
	}
	sess.SetCharacterCard(card)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetupMessage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	turn, err := sess.SendSetupMessage(completionContext(r), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Turn: turn})
}

func (s *Server) handleGenerateCharacter(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	uc, err := sess.GenerateUserCharacter(completionContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uc)
}

func (s *Server) handleGenerateCompanions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	list, err := sess.GenerateCompanions(completionContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companions": list})
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.EnterInnerGame(completionContext(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !sess.ResumeInnerGame() {
		writeError(w, r, domain.ErrNotInGame)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleExit(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.ExitToOuter()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.StartNewGame(completionContext(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	sess.ClearAll()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	turn, err := sess.SendMessage(completionContext(r), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Turn: turn})
}

func (s *Server) handleCompanionsAct(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	turns, err := sess.CompanionsAct(completionContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnsResponse{Turns: turns})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	events, err := s.chronicle.Recent(r.Context(), sess.ID(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

// completionContext keeps the request values but not its cancellation, so a
// client that goes away does not abort a completion already issued. The
// gateway's own timeout still bounds the call.
func completionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidCredential:
		return http.StatusUnauthorized
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNoJSONFound, domain.KindInvalidJSON:
		return http.StatusUnprocessableEntity
	case domain.KindBusy, domain.KindNotInGame:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindGatewayNotConfigured:
		return http.StatusPreconditionFailed
	case domain.KindUpstreamUnavailable, domain.KindAPIError, domain.KindNetworkError, domain.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
