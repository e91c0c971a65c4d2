package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"airpay/internal/bot"
	"airpay/internal/config"
	"airpay/internal/models"
	"airpay/internal/service"
	"airpay/internal/session"
	"airpay/internal/store"
)

// EventHandler consumes inbound chat events
type EventHandler interface {
	OnStart(ctx context.Context, userID string) error
	OnAction(ctx context.Context, userID, action string) error
	OnText(ctx context.Context, userID, text string) error
}

// CallbackAnswerer acknowledges inline button presses
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	cfg          *config.Config
	events       EventHandler
	callbacks    CallbackAnswerer // nil without a Telegram transport
	transactions store.TransactionStore
	sessions     *session.Registry
	feeService   *service.FeeService
	logger       *zap.Logger

	updates *updateQueue
}

// NewHandler creates a new API handler
func NewHandler(
	cfg *config.Config,
	events EventHandler,
	callbacks CallbackAnswerer,
	transactions store.TransactionStore,
	sessions *session.Registry,
	feeService *service.FeeService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:          cfg,
		events:       events,
		callbacks:    callbacks,
		transactions: transactions,
		sessions:     sessions,
		feeService:   feeService,
		logger:       logger,
		updates:      newUpdateQueue(),
	}
}

// Wait blocks until queued webhook updates are processed or the timeout passes.
// It reports whether every update finished.
func (h *Handler) Wait(timeout time.Duration) bool {
	if h.updates.wait(timeout) {
		return true
	}
	h.logger.Warn("Webhook updates still running at shutdown",
		zap.Int("users", h.updates.active()))
	return false
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
		ChainID: h.cfg.Chain.ChainID,
	}
	if h.sessions != nil {
		response.ActiveSessions = h.sessions.Len()
	}
	h.respondJSON(w, http.StatusOK, response)
}

// ==================== Telegram Webhook ====================

// HandleTelegramWebhook handles POST /telegram/{token}
// Updates are acknowledged at once and processed in the background, since a
// bulk transfer can outlast Telegram's webhook timeout. Each user's updates
// run in arrival order.
func (h *Handler) HandleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.Bot.Token)) != 1 {
		h.respondError(w, http.StatusNotFound, "Not found", nil)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Error("Failed to decode update", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, "Invalid update", err)
		return
	}

	ctx := context.WithoutCancel(r.Context())

	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cq := update.CallbackQuery
		userID := strconv.FormatInt(cq.From.ID, 10)
		h.updates.push(userID, func() {
			if h.callbacks != nil {
				if err := h.callbacks.AnswerCallback(ctx, cq.ID); err != nil {
					h.logger.Warn("Failed to answer callback", zap.Error(err))
				}
			}
			h.events.OnAction(ctx, userID, cq.Data)
		})

	case update.Message != nil && update.Message.From != nil && update.Message.Text != "":
		msg := update.Message
		userID := strconv.FormatInt(msg.From.ID, 10)
		h.updates.push(userID, func() {
			h.events.OnText(ctx, userID, msg.Text)
		})

	default:
		h.logger.Debug("Ignoring update", zap.Int("update_id", update.UpdateID))
	}

	h.respondJSON(w, http.StatusOK, EventResponse{Status: "ok"})
}

// requireAPIKey guards operator routes with the configured API key
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.cfg.Server.APIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.Server.APIKey)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.respondError(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ==================== Events ====================

// HandlePostEvent handles POST /api/v1/events
// Processes one chat event synchronously
func (h *Handler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.UserID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	var err error
	switch req.Type {
	case EventStart:
		err = h.events.OnStart(r.Context(), req.UserID)
	case EventAction:
		if req.Action == "" {
			h.respondError(w, http.StatusBadRequest, "action is required", nil)
			return
		}
		err = h.events.OnAction(r.Context(), req.UserID, req.Action)
	case EventText:
		err = h.events.OnText(r.Context(), req.UserID, req.Text)
	default:
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown event type %q", req.Type), nil)
		return
	}

	switch {
	case errors.Is(err, bot.ErrUnknownAction):
		h.respondError(w, http.StatusBadRequest, "Unknown action", err)
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "Failed to process event", err)
	default:
		h.respondJSON(w, http.StatusOK, EventResponse{Status: "processed"})
	}
}

// ==================== Transactions ====================

// HandleGetUserTransactions handles GET /api/v1/transactions/user/{userId}
// Returns the latest state of each deposit of a user
func (h *Handler) HandleGetUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	log, err := h.transactions.LoadAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to load transactions", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}

	summaries := make([]TransactionSummary, 0)
	for _, tx := range models.LatestTransactions(log) {
		if tx.UserID != userID {
			continue
		}
		summaries = append(summaries, TransactionSummary{
			ID:            tx.ID,
			WalletAddress: tx.WalletAddress,
			Amount:        tx.Amount.String(),
			Status:        tx.Status,
			Balance:       tx.Balance,
			SweepTxHash:   tx.SweepTxHash,
			Reason:        tx.Reason,
			CreatedAt:     tx.CreatedAt,
			UpdatedAt:     tx.UpdatedAt,
		})
	}

	h.respondJSON(w, http.StatusOK, GetUserTransactionsResponse{
		UserID:       userID,
		Transactions: summaries,
	})
}

// ==================== Sessions ====================

// HandleGetSessions handles GET /api/v1/sessions
func (h *Handler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.Snapshot()
	h.respondJSON(w, http.StatusOK, GetSessionsResponse{
		Count:    len(sessions),
		Sessions: sessions,
	})
}

// ==================== Fees ====================

// HandleGetFees handles GET /api/v1/fees
// Returns the cost of one plain transfer at the current gas price
func (h *Handler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	result, err := h.feeService.CalculateTransferFee(r.Context())
	if err != nil {
		h.logger.Error("Failed to calculate fee", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "Failed to calculate fee", err)
		return
	}

	h.respondJSON(w, http.StatusOK, GetFeesResponse{
		GasPriceWei:    result.GasPriceWei.String(),
		GasLimit:       result.GasLimit,
		TransferFeeWei: result.TransferFeeWei.String(),
		TransferFee:    result.TransferFee.String(),
	})
}

// ==================== Helpers ====================

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already written
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error response
func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	h.respondJSON(w, statusCode, response)
}
