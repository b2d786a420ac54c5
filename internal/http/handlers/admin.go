package handlers

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/signalix/loginbroker/internal/auth"
	"github.com/signalix/loginbroker/internal/login"
	"github.com/signalix/loginbroker/internal/middleware"
	"github.com/signalix/loginbroker/internal/model"
	"github.com/signalix/loginbroker/internal/repo"
)

// AttemptLister reports in-flight login attempts
type AttemptLister interface {
	Attempts() []login.AttemptInfo
}

// AdminHandler handles the admin endpoints: token issue, stored sessions and
// in-flight attempts
type AdminHandler struct {
	sessions   repo.SessionRepo
	attempts   AttemptLister
	jwtService *auth.JWTService
	password   *auth.PasswordChecker
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions repo.SessionRepo, attempts AttemptLister, jwtService *auth.JWTService, password *auth.PasswordChecker) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		attempts:   attempts,
		jwtService: jwtService,
		password:   password,
	}
}

// adminLoginRequest is the request body for POST /admin/login
type adminLoginRequest struct {
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// sessionResponse is one stored session in GET /admin/sessions
type sessionResponse struct {
	PhoneNumber string    `json:"phone_number"`
	Session     string    `json:"session"`
	SavedAt     time.Time `json:"saved_at"`
}

// attemptResponse is one in-flight attempt in GET /admin/attempts
type attemptResponse struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// HandleLogin handles POST /admin/login. On success the token is returned in
// the body and set as the admin_token cookie.
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.password.Check(req.Password) {
		log.Printf("Admin login rejected from %s", r.RemoteAddr)
		respondWithError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := h.jwtService.SignAdminToken()
	if err != nil {
		log.Printf("Failed to sign admin token: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.jwtService.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	respondJSON(w, http.StatusOK, adminLoginResponse{Token: token})
}

// HandleListSessions handles GET /admin/sessions
func (h *AdminHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.sessions.List(r.Context())
	if err != nil {
		log.Printf("Failed to list sessions: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, sessionResponse{
			PhoneNumber: rec.PhoneNumber,
			Session:     rec.Token,
			SavedAt:     rec.SavedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleDeleteSession handles DELETE /admin/sessions/{phone}. Deleting a phone
// without a stored session succeeds.
func (h *AdminHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if unescaped, err := url.PathUnescape(phone); err == nil {
		phone = unescaped
	}
	phone = model.NormalizePhone(phone)
	if phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}

	if err := h.sessions.Delete(r.Context(), phone); err != nil {
		logMaskedPhone(phone, "Failed to delete session", err)
		respondWithError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	log.Printf("Phone %s: stored session deleted by admin", model.MaskPhone(phone))
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleListAttempts handles GET /admin/attempts
func (h *AdminHandler) HandleListAttempts(w http.ResponseWriter, r *http.Request) {
	infos := h.attempts.Attempts()
	out := make([]attemptResponse, 0, len(infos))
	for _, a := range infos {
		out = append(out, attemptResponse{
			ID:          a.ID.String(),
			PhoneNumber: a.Phone,
			State:       a.State.String(),
			CreatedAt:   a.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
