package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"price-catalog/internal/domain"
	"price-catalog/internal/middleware"
	"price-catalog/internal/repository"
	"price-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBulkBody caps a bulk import body
const maxBulkBody = 5 << 20

// ProductRequest is the JSON form of one product. Names are checked by the
// catalog; price must be present.
type ProductRequest struct {
	ItemName  string   `json:"item_name"`
	BrandName string   `json:"brand_name"`
	Price     *float64 `json:"price" validate:"required"`
}

func (p ProductRequest) input() domain.ProductInput {
	in := domain.ProductInput{ItemName: p.ItemName, BrandName: p.BrandName}
	if p.Price != nil {
		in.Price = *p.Price
	}
	return in
}

// LegacyUpdateRequest is the body of POST /api/update
type LegacyUpdateRequest struct {
	ID int64 `json:"id"`
	ProductRequest
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// BulkResponse acknowledges a bulk import
type BulkResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ProductHandler handles HTTP requests for the price catalog
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers the catalog routes. gate wraps every mutation and
// may be nil when tokens are not enforced.
func (h *ProductHandler) RegisterRoutes(r chi.Router, gate func(http.Handler) http.Handler) {
	r.Get("/api/prices", h.List)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/grouped", h.Grouped)
		r.Get("/export.csv", h.ExportCSV)

		r.Group(func(r chi.Router) {
			if gate != nil {
				r.Use(gate)
			}
			r.Post("/", h.Create)
			r.Post("/bulk", h.BulkUpsert)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})

	r.Group(func(r chi.Router) {
		if gate != nil {
			r.Use(gate)
		}
		r.Post("/api/update", h.UpdateLegacy)
	})
}

// List returns every product ordered by item then brand
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.respondWithServiceError(w, err, "failed to list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Grouped returns products grouped by item with a price trend per brand
func (h *ProductHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.catalog.Grouped(r.Context())
	if err != nil {
		h.respondWithServiceError(w, err, "failed to list products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, groups)
}

// ExportCSV streams the catalog as Item,Brand,Price
func (h *ProductHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.respondWithServiceError(w, err, "failed to export products")
		return
	}

	filename := fmt.Sprintf("prices_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if err := WritePriceCSV(w, products); err != nil {
		h.logger.Error("Failed to write CSV export", zap.Error(err))
	}
}

// Create adds a new item/brand price
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !h.decodeInput(w, r, &req) {
		return
	}

	product, err := h.catalog.Create(r.Context(), req.input())
	if err != nil {
		h.respondWithServiceError(w, err, "failed to create product")
		return
	}

	h.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("item_name", product.ItemName),
		zap.String("brand_name", product.BrandName),
		zap.Bool("admin", middleware.IsAdmin(r.Context())),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update replaces the fields of the product named in the path
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if !h.decodeInput(w, r, &req) {
		return
	}

	h.update(w, r, id, req.input())
}

// UpdateLegacy is Update with the id carried in the body
func (h *ProductHandler) UpdateLegacy(w http.ResponseWriter, r *http.Request) {
	var req LegacyUpdateRequest
	if !h.decodeInput(w, r, &req) {
		return
	}

	h.update(w, r, req.ID, req.input())
}

func (h *ProductHandler) update(w http.ResponseWriter, r *http.Request, id int64, input domain.ProductInput) {
	product, err := h.catalog.Update(r.Context(), id, input)
	if err != nil {
		h.respondWithServiceError(w, err, "failed to update product")
		return
	}

	h.logger.Info("Product updated",
		zap.Int64("product_id", product.ID),
		zap.Float64("price", product.Price),
		zap.Float64("prev_price", product.PrevPrice),
		zap.Bool("admin", middleware.IsAdmin(r.Context())),
	)
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Delete removes one product
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.respondWithServiceError(w, err, "failed to delete product")
		return
	}

	h.logger.Info("Product deleted",
		zap.Int64("product_id", id),
		zap.Bool("admin", middleware.IsAdmin(r.Context())),
	)
	middleware.RespondWithJSON(w, http.StatusOK, MessageResponse{Message: "Deleted successfully"})
}

// BulkUpsert imports a JSON array or pasted price lines in one transaction
func (h *ProductHandler) BulkUpsert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkBody)

	var (
		inputs []domain.ProductInput
		err    error
	)
	if isPriceLines(r.Header.Get("Content-Type")) {
		inputs, err = ParsePriceLines(r.Body)
		var lineErr *LineError
		if errors.As(err, &lineErr) {
			h.logger.Debug("Bulk paste rejected", zap.Error(err))
			middleware.RespondWithErrorDetails(w, http.StatusBadRequest, "invalid price list", map[string]interface{}{
				"line":   lineErr.Line,
				"reason": lineErr.Reason,
			})
			return
		}
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		var ok bool
		if inputs, ok = h.decodeBulkJSON(w, r); !ok {
			return
		}
	}

	count, err := h.catalog.BulkUpsert(r.Context(), inputs)
	if err != nil {
		h.respondWithServiceError(w, err, "failed to import products")
		return
	}

	h.logger.Info("Bulk import applied",
		zap.Int("count", count),
		zap.Bool("admin", middleware.IsAdmin(r.Context())),
	)
	middleware.RespondWithJSON(w, http.StatusOK, BulkResponse{Message: "Bulk update successful", Count: count})
}

func (h *ProductHandler) decodeBulkJSON(w http.ResponseWriter, r *http.Request) ([]domain.ProductInput, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.logger.Debug("Bulk decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid input, expected array")
		return nil, false
	}

	var reqs []ProductRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		h.logger.Debug("Bulk entries malformed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	inputs := make([]domain.ProductInput, len(reqs))
	var rejected []middleware.ValidationError
	for i, req := range reqs {
		for _, ve := range middleware.FormatValidationErrors(middleware.ValidateRequest(req)) {
			idx := i
			ve.Index = &idx
			rejected = append(rejected, ve)
		}
		inputs[i] = req.input()
	}
	if len(rejected) > 0 {
		h.logger.Debug("Bulk entries rejected", zap.Int("rejected", len(rejected)))
		middleware.RespondWithValidationErrors(w, rejected)
		return nil, false
	}
	return inputs, true
}

// decodeInput answers 400 itself and reports false when the body is unusable
func (h *ProductHandler) decodeInput(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	h.logger.Debug("Product payload rejected", zap.Error(err))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func isPriceLines(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/csv" || mediaType == "text/plain"
}

func (h *ProductHandler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// respondWithServiceError maps catalog errors onto HTTP statuses
func (h *ProductHandler) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrProductConflict):
		h.logger.Debug("Product conflict", zap.Error(err))
		middleware.RespondWithError(w, http.StatusConflict, "item and brand combination already exists")
	case errors.Is(err, repository.ErrProductNotFound):
		h.logger.Debug("Product not found", zap.Error(err))
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrInvalidInput):
		h.logger.Debug("Product input rejected", zap.Error(err))
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			middleware.RespondWithValidationErrors(w, toValidationErrors(verr))
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid input")
	default:
		h.logger.Error("Catalog operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func toValidationErrors(verr *service.ValidationError) []middleware.ValidationError {
	out := make([]middleware.ValidationError, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		out = append(out, middleware.ValidationError{Index: f.Index, Field: f.Field, Message: f.Message})
	}
	return out
}
