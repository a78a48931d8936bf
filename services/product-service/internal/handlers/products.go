package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/arman-khondker/shopstream/libs/kafkax"
	"github.com/arman-khondker/shopstream/services/product-service/internal/storage"
)

type Handler struct {
	products *storage.ProductRepository
	writer   *kafka.Writer
	logger   *slog.Logger
}

func New(products *storage.ProductRepository, writer *kafka.Writer, logger *slog.Logger) *Handler {
	return &Handler{products: products, writer: writer, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Price <= 0 {
		http.Error(w, "product name and price are required", http.StatusBadRequest)
		return
	}

	product := storage.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	}
	if err := h.products.Create(r.Context(), product); err != nil {
		http.Error(w, "failed to create product", http.StatusInternalServerError)
		return
	}

	h.produceCreated(r.Context(), product)

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "product created successfully",
		"id":      product.ID,
	})
}

func (h *Handler) produceCreated(ctx context.Context, product storage.Product) {
	payload, err := json.Marshal(map[string]any{
		"product_id": product.ID,
		"name":       product.Name,
		"price":      product.Price,
	})
	if err != nil {
		return
	}
	msg := kafka.Message{
		Key:   []byte(product.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte("product.created")},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		h.logger.Error("product-created produce failed", "product_id", product.ID, "err", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := strings.TrimPrefix(r.URL.Path, "/products/")
	if len(productID) < 32 || len(productID) > 36 {
		http.Error(w, "product id must be 32 to 36 characters", http.StatusBadRequest)
		return
	}

	product, err := h.products.GetByID(r.Context(), productID)
	if storage.IsNotFound(err) {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load product", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(productResponse(product))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	products, err := h.products.List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, "failed to list products", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse(p))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": out})
}

func productResponse(p storage.Product) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
