// Package handler содержит HTTP-обработчики API сервиса приёма заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/albinvayalil/emartCheck/internal/model"
	"github.com/albinvayalil/emartCheck/internal/repository"
	"github.com/albinvayalil/emartCheck/internal/service"
	"github.com/albinvayalil/emartCheck/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ValidateUser(ctx context.Context, userID, password string) (string, error)
	GetUserDetails(ctx context.Context, userID string) (*model.UserDetails, error)
	SubmitOrder(ctx context.Context, req model.OrderRequest) (model.BatchResult, error)
}

// Handler реализует HTTP-обработчики API сервиса приёма заказов.
type Handler struct {
	service Service
	logger  *zap.Logger
	metrics http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// metrics может быть nil, тогда маршрут /metrics не регистрируется.
func NewHandler(s Service, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		metrics: metrics,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health сообщает, что сервис запущен.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

type credentialsRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type validateResponse struct {
	Status string `json:"status"`
	User   string `json:"user"`
	Email  string `json:"email"`
}

// ValidateUser проверяет учётные данные пользователя и возвращает его email.
func (h *Handler) ValidateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	email, err := h.service.ValidateUser(r.Context(), req.UserID, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "failed"})
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("validate user error", zap.Error(err), zap.String("user_id", req.UserID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Status: "success",
		User:   req.UserID,
		Email:  email,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetUserDetails возвращает KYC-статус и баланс пользователя.
func (h *Handler) GetUserDetails(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	details, err := h.service.GetUserDetails(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "User not found"})
			return
		}
		h.logger.Error("get user details error", zap.Error(err), zap.String("user_id", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// SubmitOrder отправляет позиции заказа в леджер и возвращает сводку по доставке.
// Метка partial возвращается и при полной неудаче; её отличает код 500.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "failed", Message: "Missing user_id or items"})
		return
	}

	result, err := h.service.SubmitOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrMissingOrderFields):
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "failed", Message: "Missing user_id or items"})
		case errors.Is(err, validation.ErrInvalidItem):
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "failed", Message: "Invalid item in order"})
		default:
			h.logger.Error("submit order error", zap.Error(err), zap.String("user_id", req.UserID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, result.HTTPStatus(), statusResponse{
		Status:  string(result.Status()),
		Message: result.Message(),
	})
}
