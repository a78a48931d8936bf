package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/arman-khondker/shopstream/libs/kafkax"
	"github.com/arman-khondker/shopstream/services/payment-service/internal/storage"
)

// The gateway outcome is an opaque pass-through: this service records it
// and fans it out, it does not talk to a payment provider.
const statusSuccess = "success"

type Handler struct {
	payments      *storage.PaymentRepository
	successWriter *kafka.Writer
	failureWriter *kafka.Writer
	logger        *slog.Logger
}

func New(payments *storage.PaymentRepository, successWriter *kafka.Writer, failureWriter *kafka.Writer, logger *slog.Logger) *Handler {
	return &Handler{
		payments:      payments,
		successWriter: successWriter,
		failureWriter: failureWriter,
		logger:        logger,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		OrderID         string  `json:"order_id"`
		Amount          float64 `json:"amount"`
		Status          string  `json:"status"`
		GatewayResponse string  `json:"payment_gateway_response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Status = strings.TrimSpace(strings.ToLower(req.Status))
	if req.OrderID == "" || req.Status == "" || req.GatewayResponse == "" {
		http.Error(w, "order_id, status and payment_gateway_response are required", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	payment := storage.Payment{
		ID:              uuid.NewString(),
		OrderID:         req.OrderID,
		Amount:          req.Amount,
		Status:          req.Status,
		GatewayResponse: req.GatewayResponse,
	}
	if err := h.payments.Create(r.Context(), payment); err != nil {
		http.Error(w, "failed to record payment", http.StatusInternalServerError)
		return
	}

	h.produceOutcome(r.Context(), payment)

	w.WriteHeader(http.StatusCreated)
	message := "payment made successfully"
	if payment.Status != statusSuccess {
		message = "payment failed"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": message,
		"id":      payment.ID,
	})
}

// produceOutcome fans the payment out to the success or failure topic;
// the order coordinator turns it into the order's terminal status.
func (h *Handler) produceOutcome(ctx context.Context, payment storage.Payment) {
	payload, err := json.Marshal(map[string]any{
		"payment_id":               payment.ID,
		"order_id":                 payment.OrderID,
		"amount":                   payment.Amount,
		"payment_gateway_response": payment.GatewayResponse,
	})
	if err != nil {
		return
	}

	writer := h.failureWriter
	eventType := "payment.failed"
	if payment.Status == statusSuccess {
		writer = h.successWriter
		eventType = "payment.succeeded"
	}

	msg := kafka.Message{
		Key:   []byte(payment.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := writer.WriteMessages(ctx, msg); err != nil {
		h.logger.Error("payment outcome produce failed",
			"payment_id", payment.ID,
			"order_id", payment.OrderID,
			"status", payment.Status,
			"err", err,
		)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	paymentID := strings.TrimPrefix(r.URL.Path, "/payments/")
	if len(paymentID) < 32 || len(paymentID) > 36 {
		http.Error(w, "payment id must be 32 to 36 characters", http.StatusBadRequest)
		return
	}

	payment, err := h.payments.GetByID(r.Context(), paymentID)
	if storage.IsNotFound(err) {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load payment", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":                       payment.ID,
		"order_id":                 payment.OrderID,
		"amount":                   payment.Amount,
		"status":                   payment.Status,
		"payment_gateway_response": payment.GatewayResponse,
	})
}
