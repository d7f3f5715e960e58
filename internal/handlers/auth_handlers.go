package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"finstack-backend/internal/models"
	"finstack-backend/internal/services"
	"finstack-backend/pkg/httputil"
)

// AuthService defines the interface expected from the auth service.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	TokenTTLSeconds() int64
}

type AuthHandler struct {
	authService AuthService
}

func NewAuthHandler(authSvc AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
	}
}

// HandleLogin handles the POST /admin/login request.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Printf("Login handler failed for %s: %v", req.Username, err)
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			httputil.RespondError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, services.ErrAdminDisabled):
			httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Login failed due to an internal error")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusOK, models.AuthResponse{
		AccessToken: token,
		ExpiresIn:   h.authService.TokenTTLSeconds(),
	})
}
