package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"talkroom/internal/core/domain"
	"talkroom/internal/core/services"
	"talkroom/internal/platform/logger"
)

type AuthHandler struct {
	accountSvc *services.AccountService
	tokenSvc   *services.TokenService
}

func NewAuthHandler(a *services.AccountService, t *services.TokenService) *AuthHandler {
	return &AuthHandler{accountSvc: a, tokenSvc: t}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.ErrorContext(r.Context(), "auth handler - sign up - bad request")
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.accountSvc.SignUp(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.ErrorContext(r.Context(), "auth handler - sign up failed", "username", req.Username)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token, err := h.tokenSvc.GenerateToken(user.ID)
	if err != nil {
		log.ErrorContext(r.Context(), "auth handler - generate token failed", "username", req.Username)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"token":      token,
		"user_id":    user.ID,
		"created_at": user.CreatedAt,
	})
	log.InfoContext(r.Context(), "auth handler - sign up success", "username", req.Username)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.ErrorContext(r.Context(), "auth handler - sign in - bad request")
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.accountSvc.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrBadCredentials) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token, err := h.tokenSvc.GenerateToken(user.ID)
	if err != nil {
		log.ErrorContext(r.Context(), "auth handler - generate token failed", "username", req.Username)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"token":   token,
		"user_id": user.ID,
	})
	log.InfoContext(r.Context(), "auth handler - sign in success", "username", req.Username)
}
