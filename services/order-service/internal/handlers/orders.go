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
	"github.com/arman-khondker/shopstream/services/order-service/internal/storage"
)

type Handler struct {
	orders *storage.OrderRepository
	users  *storage.RegisteredUserRepository
	writer *kafka.Writer
	logger *slog.Logger
}

func New(orders *storage.OrderRepository, users *storage.RegisteredUserRepository, writer *kafka.Writer, logger *slog.Logger) *Handler {
	return &Handler{orders: orders, users: users, writer: writer, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		UserID     string  `json:"user_id"`
		TotalPrice float64 `json:"total_price"`
		Products   []struct {
			ProductID string  `json:"product_id"`
			Quantity  int     `json:"quantity"`
			Price     float64 `json:"price"`
		} `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "order must contain user_id", http.StatusBadRequest)
		return
	}
	if req.TotalPrice <= 0 {
		http.Error(w, "order must contain total_price", http.StatusBadRequest)
		return
	}
	if len(req.Products) == 0 {
		http.Error(w, "order must contain products", http.StatusBadRequest)
		return
	}

	// Only users seen on the registration topic may place orders.
	known, err := h.users.Exists(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, "failed to verify user", http.StatusInternalServerError)
		return
	}
	if !known {
		http.Error(w, "user not found, order cannot be created", http.StatusUnprocessableEntity)
		return
	}

	order := storage.Order{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		TotalPrice: req.TotalPrice,
	}
	items := make([]storage.OrderItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, storage.OrderItem{ProductID: p.ProductID, Quantity: p.Quantity, Price: p.Price})
	}

	tx, err := h.orders.Begin(r.Context())
	if err != nil {
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	if err := h.orders.Create(r.Context(), tx, order, items); err != nil {
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	h.produceCreated(r.Context(), order)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "order created successfully",
		"id":      order.ID,
	})
}

// produceCreated is best-effort: the order row is already committed, and
// downstream consumers of order-created only drive notifications.
func (h *Handler) produceCreated(ctx context.Context, order storage.Order) {
	if h.writer == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_price": order.TotalPrice,
	})
	if err != nil {
		return
	}
	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte("order.created")},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		h.logger.Error("order-created produce failed", "order_id", order.ID, "err", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orderID := strings.TrimPrefix(r.URL.Path, "/orders/")
	if len(orderID) < 32 || len(orderID) > 36 {
		http.Error(w, "order id must be 32 to 36 characters", http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetByID(r.Context(), orderID)
	if storage.IsNotFound(err) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":          order.ID,
		"user_id":     order.UserID,
		"total_price": order.TotalPrice,
		"status":      order.Status,
	})
}
