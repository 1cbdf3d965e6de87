/**
 * @description
 * HTTP handlers for the trading service. Every response uses the envelope
 * {success, code, message, data}.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/however6234/trading-system/internal/app"
	"github.com/however6234/trading-system/internal/domain"
)

const maxRequestBodyBytes = 1 << 20

// TradingService is the application surface the handlers call.
type TradingService interface {
	CreateUser(ctx context.Context, userName, email string) (*domain.User, error)
	Recharge(ctx context.Context, userID int64, amount domain.Money, currency string) (*domain.Account, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	CreateMerchant(ctx context.Context, name, code string) (*domain.Merchant, error)
	DeleteMerchant(ctx context.Context, merchantID int64) error
	AddProduct(ctx context.Context, merchantID int64, input app.ProductInput) (*domain.Product, error)
	IncreaseStock(ctx context.Context, merchantID int64, sku string, quantity int) (*domain.Product, error)
	FindAllProducts(ctx context.Context, merchantID int64) ([]domain.Product, error)
	GetProductBySku(ctx context.Context, sku string, merchantID int64) (*domain.Product, error)
	ListSettlementWarns(ctx context.Context, merchantID int64, limit int) ([]domain.SettlementWarn, error)
	Purchase(ctx context.Context, req app.PurchaseRequest) (*domain.Receipt, error)
	RunDailySettlement(ctx context.Context) (app.SettlementResult, error)
}

var _ TradingService = (*app.Service)(nil)

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service  TradingService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service TradingService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, validate: newValidator()}
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.UserName, req.Email)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, user)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok || !h.authorizeUser(w, r, userID) {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, user)
}

func (h *Handler) handleRecharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok || !h.authorizeUser(w, r, userID) {
		return
	}
	var req rechargeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.service.Recharge(r.Context(), userID, req.Amount, req.Currency)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, account)
}

func (h *Handler) handleCreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req createMerchantRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	merchant, err := h.service.CreateMerchant(r.Context(), req.Name, req.Code)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, merchant)
}

func (h *Handler) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}
	var req addProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.service.AddProduct(r.Context(), merchantID, app.ProductInput{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, product)
}

func (h *Handler) handleIncreaseStock(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}
	var req increaseStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	product, err := h.service.IncreaseStock(r.Context(), merchantID, req.SKU, req.Quantity)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}

	products, err := h.service.FindAllProducts(r.Context(), merchantID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, products)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}

	product, err := h.service.GetProductBySku(r.Context(), chi.URLParam(r, "sku"), merchantID)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}

func (h *Handler) handleListSettlementWarns(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.respondWithError(w, r, domain.ErrParamValidation.Wrap(errors.New("limit must be a positive integer")))
			return
		}
		limit = parsed
	}

	warns, err := h.service.ListSettlementWarns(r.Context(), merchantID, limit)
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, warns)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decodeAndValidate(w, r, &req) || !h.authorizeUser(w, r, req.UserID) {
		return
	}

	receipt, err := h.service.Purchase(r.Context(), app.PurchaseRequest{
		UserID:     req.UserID,
		MerchantID: req.MerchantID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, receipt)
}

func (h *Handler) handleRunSettlement(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunDailySettlement(r.Context())
	if err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, nil)
}

func (h *Handler) handleDeleteMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := h.pathID(w, r, "merchantID")
	if !ok {
		return
	}
	if err := h.service.DeleteMerchant(r.Context(), merchantID); err != nil {
		h.respondWithError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, nil)
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if domain.IsKind(err, domain.KindInvalidAmount) {
			h.respondWithError(w, r, err)
			return false
		}
		h.respondWithError(w, r, domain.ErrParamValidation.Wrap(errors.New("invalid request body")))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondWithError(w, r, domain.ErrParamValidation.Wrap(errors.New(formatValidationError(err))))
		return false
	}
	return true
}

// authorizeUser rejects authenticated requests acting on another user's account.
// Without a token subject (authentication disabled) every user id is allowed.
func (h *Handler) authorizeUser(w http.ResponseWriter, r *http.Request, userID int64) bool {
	subject, ok := SubjectFromContext(r.Context())
	if !ok || subject == strconv.FormatInt(userID, 10) {
		return true
	}
	h.respondWithError(w, r, domain.ErrForbidden)
	return false
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.respondWithError(w, r, domain.ErrParamValidation.Wrap(errors.New(name+" must be a positive integer")))
		return 0, false
	}
	return id, true
}
