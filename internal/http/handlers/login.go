package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalix/loginbroker/internal/login"
	"github.com/signalix/loginbroker/internal/model"
)

// LoginService is the login flow as seen by the HTTP layer
type LoginService interface {
	Start(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code, password string) (login.VerifyResult, error)
	Cancel(ctx context.Context, phone string) error
}

// LoginHandler handles the phone login endpoints
type LoginHandler struct {
	service LoginService
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(service LoginService) *LoginHandler {
	return &LoginHandler{service: service}
}

// phoneRequest is the request body for POST /login/start and /login/cancel
type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// verifyRequest is the request body for POST /login/verify
type verifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Password    string `json:"password"`
}

// verifyResponse is either the exported session or a password prompt
type verifyResponse struct {
	Session       string `json:"session,omitempty"`
	NeedsPassword bool   `json:"needs_password,omitempty"`
}

// HandleStart handles POST /login/start
func (h *LoginHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone := model.NormalizePhone(req.PhoneNumber)
	if phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if err := h.service.Start(r.Context(), phone); err != nil {
		logMaskedPhone(phone, "Failed to start login", err)
		respondWithLoginError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleVerify handles POST /login/verify
func (h *LoginHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone := model.NormalizePhone(req.PhoneNumber)
	if phone == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number and code are required")
		return
	}

	result, err := h.service.Verify(r.Context(), phone, req.Code, req.Password)
	if err != nil {
		logMaskedPhone(phone, "Verification failed", err)
		respondWithLoginError(w, err)
		return
	}

	if result.NeedsPassword {
		respondJSON(w, http.StatusOK, verifyResponse{NeedsPassword: true})
		return
	}
	respondJSON(w, http.StatusOK, verifyResponse{Session: result.Token})
}

// HandleCancel handles POST /login/cancel
func (h *LoginHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone := model.NormalizePhone(req.PhoneNumber)
	if phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if err := h.service.Cancel(r.Context(), phone); err != nil {
		respondWithLoginError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// loginErrorStatus maps login service errors to HTTP status codes. Unknown
// errors (storage failures) are 500.
func loginErrorStatus(err error) int {
	switch {
	case errors.Is(err, login.ErrAttemptInProgress):
		return http.StatusConflict
	case errors.Is(err, login.ErrNoSuchAttempt):
		return http.StatusGone
	case errors.Is(err, login.ErrInvalidCode), errors.Is(err, login.ErrInvalidPassword):
		return http.StatusUnauthorized
	case errors.Is(err, login.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(err, login.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, login.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, login.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithLoginError(w http.ResponseWriter, err error) {
	status := loginErrorStatus(err)
	if status == http.StatusInternalServerError {
		respondWithError(w, status, "internal error")
		return
	}
	respondWithError(w, status, err.Error())
}
