package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"promotion-engine/internal/models"
	"promotion-engine/internal/service"
	"promotion-engine/internal/validation"
)

// genericCodeError is the storefront answer for unknown and inapplicable
// codes alike, so codes cannot be probed.
const genericCodeError = "promotion code cannot be applied to this cart"

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	health      func(ctx context.Context) error
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	// Health reports whether dependencies are reachable. Optional.
	Health func(ctx context.Context) error
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		health:      opts.Health,
	}
}

// RegisterRoutes mounts the storefront and admin routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/cart/quote", h.QuoteCart)

	r.Route("/promotions", func(r chi.Router) {
		r.Post("/validate", h.ValidateCode)
		r.Post("/automatic", h.BestAutomaticPromotion)
		r.Post("/{id}/redeem", h.RedeemPromotion)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", h.SavePromotion)
			r.Post("/validate", h.CheckCode)
			r.Get("/{id}", h.GetPromotion)
			r.Get("/{id}/usage", h.ListUsage)
		})
		r.Route("/direct-promotions", func(r chi.Router) {
			r.Post("/", h.SaveDirectPromotion)
			r.Post("/revert", h.RevertPriceDiscounts)
			r.Get("/stats", h.PromotionStats)
			r.Post("/{id}/apply", h.ApplyPriceDiscount)
			r.Post("/{id}/activate", h.ActivateFreeShipping)
			r.Post("/{id}/deactivate", h.DeactivateDirectPromotion)
		})
		r.Get("/features", h.ListFeatures)
	})

	r.Get("/health", h.Health)
}

// QuoteCart handles POST /cart/quote
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = validation.SanitizeString(req.UserID)
	req.ShippingAreaID = validation.SanitizeString(req.ShippingAreaID)

	total, err := h.service.CalculateOrderTotal(r.Context(), req)
	if err != nil {
		h.respondStorefrontError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, total)
}

// ValidateCode handles POST /promotions/validate
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = validation.SanitizeString(req.UserID)

	if err := validation.ValidateIdentifier(req.UserID, "user_id"); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	cart, err := h.service.LoadCart(r.Context(), req.UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	eval, err := h.service.ValidatePromotionCode(r.Context(), req.Code, cart)
	if err != nil {
		h.respondStorefrontError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.PromotionDiscount{
		DiscountAmount: eval.Discount,
		Promotion:      eval.Promotion,
	})
}

// BestAutomaticPromotion handles POST /promotions/automatic
func (h *Handler) BestAutomaticPromotion(w http.ResponseWriter, r *http.Request) {
	var req models.AutomaticPromotionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = validation.SanitizeString(req.UserID)

	if err := validation.ValidateIdentifier(req.UserID, "user_id"); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	cart, err := h.service.LoadCart(r.Context(), req.UserID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	best, err := h.service.ApplyBestAutomaticPromotion(r.Context(), cart)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := models.AutomaticPromotionResponse{}
	if best != nil {
		resp.Offer = &models.PromotionDiscount{DiscountAmount: best.Discount, Promotion: best.Promotion}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

type redeemBody struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// RedeemPromotion handles POST /promotions/{id}/redeem
func (h *Handler) RedeemPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var body redeemBody
	if !h.decode(w, r, &body) {
		return
	}

	usage, err := h.service.RedeemPromotion(r.Context(), models.RedeemRequest{
		PromotionID:    id,
		OrderID:        validation.SanitizeString(body.OrderID),
		UserID:         validation.SanitizeString(body.UserID),
		DiscountAmount: body.DiscountAmount,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, usage)
}

// SavePromotion handles POST /admin/promotions
func (h *Handler) SavePromotion(w http.ResponseWriter, r *http.Request) {
	var req models.Promotion
	if !h.decode(w, r, &req) {
		return
	}
	req.Name.EN = validation.SanitizeString(req.Name.EN)
	req.Name.AR = validation.SanitizeString(req.Name.AR)

	saved, err := h.service.SavePromotion(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, saved)
}

// CheckCode handles POST /admin/promotions/validate
func (h *Handler) CheckCode(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = validation.SanitizeString(req.UserID)

	res, err := h.service.CheckPromotionCode(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, res)
}

// GetPromotion handles GET /admin/promotions/{id}
func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	promo, err := h.service.GetPromotion(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, promo)
}

// ListUsage handles GET /admin/promotions/{id}/usage
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	usages, err := h.service.ListPromotionUsage(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, usages)
}

// SaveDirectPromotion handles POST /admin/direct-promotions
func (h *Handler) SaveDirectPromotion(w http.ResponseWriter, r *http.Request) {
	var req models.DirectPromotion
	if !h.decode(w, r, &req) {
		return
	}
	req.Name.EN = validation.SanitizeString(req.Name.EN)
	req.Name.AR = validation.SanitizeString(req.Name.AR)

	saved, err := h.service.SaveDirectPromotion(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if req.ID == 0 {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, saved)
}

// ApplyPriceDiscount handles POST /admin/direct-promotions/{id}/apply
func (h *Handler) ApplyPriceDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.service.ApplyPriceDiscount(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// RevertPriceDiscounts handles POST /admin/direct-promotions/revert
func (h *Handler) RevertPriceDiscounts(w http.ResponseWriter, r *http.Request) {
	reverted, err := h.service.RevertPriceDiscounts(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.RevertResult{RevertedCount: reverted})
}

// ActivateFreeShipping handles POST /admin/direct-promotions/{id}/activate
func (h *Handler) ActivateFreeShipping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	d, err := h.service.ActivateFreeShipping(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, d)
}

// DeactivateDirectPromotion handles POST /admin/direct-promotions/{id}/deactivate
func (h *Handler) DeactivateDirectPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PromotionStats handles GET /admin/direct-promotions/stats
func (h *Handler) PromotionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetPromotionStats(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ListFeatures handles GET /admin/features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.Features().List())
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			h.respondError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// respondStorefrontError hides whether a code is unknown or inapplicable.
func (h *Handler) respondStorefrontError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrInvalidCode) || errors.Is(err, service.ErrNotEligible) {
		h.respondError(w, http.StatusUnprocessableEntity, genericCodeError)
		return
	}
	h.respondServiceError(w, r, err)
}

// respondServiceError maps service errors to status codes. Unknown errors
// are logged and answered with a bare 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *validation.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.respondError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, service.ErrInvalidCode), errors.Is(err, service.ErrNotEligible):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrPromotionNotFound), errors.Is(err, service.ErrDirectPromotionNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUsageLimitExceeded),
		errors.Is(err, service.ErrAlreadyRedeemed),
		errors.Is(err, service.ErrInvalidDirectPromotionState):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
