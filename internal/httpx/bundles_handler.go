package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tdevries/commerce-bundles/internal/bundles"
	"github.com/tdevries/commerce-bundles/internal/redisx"
)

type BundlesHandler struct {
	Repo    *bundles.Repo
	Engine  *bundles.StockEngine
	Redis   *redis.Client
	Service string
}

func (h *BundlesHandler) Register(r *chi.Mux) {
	r.Post("/bundles", h.saveBundle)
	r.Get("/bundles", h.listBundles)
	r.Get("/bundles/{id}", h.getBundle)
	r.Get("/bundles/{id}/status", h.getStatus)
	r.Get("/bundles/{id}/availability", h.getAvailability)
	r.Post("/cart/validate", h.validateCart)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type constituentDTO struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id"`
	Multiplier int    `json:"multiplier,omitempty"`
}

type bundleDTO struct {
	ID                 string           `json:"id,omitempty"`
	Title              string           `json:"title"`
	Slug               string           `json:"slug,omitempty"`
	SKU                string           `json:"sku"`
	Price              decimal.Decimal  `json:"price"`
	Enabled            bool             `json:"enabled"`
	PostDate           *time.Time       `json:"post_date,omitempty"`
	ExpiryDate         *time.Time       `json:"expiry_date,omitempty"`
	TaxCategoryID      *string          `json:"tax_category_id,omitempty"`
	ShippingCategoryID *string          `json:"shipping_category_id,omitempty"`
	Constituents       []constituentDTO `json:"products"`
}

func (d bundleDTO) toModel() *bundles.Bundle {
	b := &bundles.Bundle{
		ID:                 d.ID,
		Title:              d.Title,
		Slug:               d.Slug,
		SKU:                d.SKU,
		Price:              d.Price,
		Enabled:            d.Enabled,
		PostDate:           d.PostDate,
		ExpiryDate:         d.ExpiryDate,
		TaxCategoryID:      d.TaxCategoryID,
		ShippingCategoryID: d.ShippingCategoryID,
	}
	for _, c := range d.Constituents {
		if c.Multiplier == 0 {
			c.Multiplier = 1
		}
		b.Constituents = append(b.Constituents, bundles.Constituent{
			ProductID:  c.ProductID,
			VariantID:  c.VariantID,
			Multiplier: c.Multiplier,
		})
	}
	return b
}

func (h *BundlesHandler) saveBundle(w http.ResponseWriter, r *http.Request) {
	var dto bundleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b := dto.toModel()
	id, err := h.Repo.Save(ctx, b)
	if err != nil {
		if ve, ok := bundles.AsValidationError(err); ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": ve.Fields})
			return
		}
		log.Error().Err(err).Msg("save bundle failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// A save can change dates, the enabled flag, or the constituent
	// list; any cached availability is suspect afterwards.
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBundleAvailability, id)).Err()

	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *BundlesHandler) listBundles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bs, err := h.Repo.List(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *BundlesHandler) getBundle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.loadBundle(ctx, w, r)
	if b == nil || err != nil {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BundlesHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.loadBundle(ctx, w, r)
	if b == nil || err != nil {
		return
	}
	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      b.StatusAt(now),
		"purchasable": b.IsAvailable(now),
	})
}

type availabilityResp struct {
	Qty         int  `json:"qty"`
	Unlimited   bool `json:"unlimited"`
	Purchasable bool `json:"purchasable"`
}

func (h *BundlesHandler) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	key := fmt.Sprintf(redisx.KeyBundleAvailability, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	b, err := h.loadBundle(ctx, w, r)
	if b == nil || err != nil {
		return
	}

	level, err := h.Engine.AvailableQuantity(ctx, b)
	if err != nil {
		if errors.Is(err, bundles.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := availabilityResp{
		Qty:       level.Qty,
		Unlimited: level.Unlimited,
		Purchasable: b.IsAvailable(time.Now().UTC()) &&
			(level.Unlimited || level.Qty > 0),
	}
	body, _ := json.Marshal(resp)
	_ = h.Redis.Set(ctx, key, body, redisx.TTLAvailabilityCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type validateCartReq struct {
	BundleID string `json:"bundle_id"`
	Qty      int    `json:"qty"`
}

type validateCartResp struct {
	AcceptedQty int      `json:"accepted_qty"`
	Warnings    []string `json:"warnings,omitempty"`
	Status      string   `json:"status"`
}

func (h *BundlesHandler) validateCart(w http.ResponseWriter, r *http.Request) {
	var req validateCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.BundleID == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := h.Repo.Load(ctx, req.BundleID)
	if err != nil {
		if errors.Is(err, bundles.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	status := b.StatusAt(now)
	if status != bundles.StatusLive {
		// status gates the cart; quantity checks only matter for live bundles
		writeJSON(w, http.StatusOK, validateCartResp{
			AcceptedQty: 0,
			Warnings:    []string{fmt.Sprintf("%s is not available for purchase", b.Description())},
			Status:      string(status),
		})
		return
	}

	accepted, warnings := h.Engine.ValidateAndClamp(ctx, b, req.Qty)
	writeJSON(w, http.StatusOK, validateCartResp{
		AcceptedQty: accepted,
		Warnings:    warnings,
		Status:      string(status),
	})
}

// loadBundle resolves {id} and writes the error response itself when the
// bundle cannot be loaded.
func (h *BundlesHandler) loadBundle(ctx context.Context, w http.ResponseWriter, r *http.Request) (*bundles.Bundle, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return nil, nil
	}
	b, err := h.Repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, bundles.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return nil, err
	}
	return b, nil
}
