package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/however6234/trading-system/internal/app"
	"github.com/however6234/trading-system/internal/domain"
)

type envelope struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondWithData(w http.ResponseWriter, status int, data interface{}) {
	respondWithJSON(w, status, envelope{
		Success: true,
		Code:    domain.CodeSuccess,
		Message: domain.MessageSuccess,
		Data:    data,
	})
}

// respondWithError writes the failure envelope. Validation and amount failures
// carry their detail in the message; system errors never expose the cause.
func (h *Handler) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	tradingErr := domain.AsError(err)
	status := statusForError(tradingErr)

	message := tradingErr.Message
	if (domain.IsKind(err, domain.KindInvalidParam) || domain.IsKind(err, domain.KindInvalidAmount)) && tradingErr.Err != nil {
		message = tradingErr.Message + ": " + tradingErr.Err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}

	var retry *app.RetryAfterError
	if errors.As(err, &retry) && retry.Seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retry.Seconds))
	}

	respondWithJSON(w, status, envelope{
		Success: false,
		Code:    tradingErr.Code,
		Message: message,
	})
}

func statusForError(err *domain.Error) int {
	if err.Code == domain.ErrPurchaseRateLimited.Code {
		return http.StatusTooManyRequests
	}
	switch err.Kind {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindOperationFailed:
		return http.StatusConflict
	case domain.KindInsufficientFunds, domain.KindInsufficientStock:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidAmount, domain.KindInvalidParam, domain.KindCurrencyUnsupported:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondUnauthorized(w http.ResponseWriter, detail string) {
	respondWithJSON(w, http.StatusUnauthorized, envelope{
		Success: false,
		Code:    domain.ErrUnauthorized.Code,
		Message: domain.ErrUnauthorized.Message + ": " + detail,
	})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
