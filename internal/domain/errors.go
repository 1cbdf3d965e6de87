/**
 * @description
 * Typed trading errors. Every business failure carries a stable code and a
 * human readable message that the API layer returns verbatim.
 */
package domain

import "errors"

// ErrorKind groups error codes into the categories callers branch on.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindCurrencyUnsupported ErrorKind = "currency_unsupported"
	KindInvalidParam        ErrorKind = "invalid_param"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
	KindOperationFailed     ErrorKind = "operation_failed"
	KindSystemError         ErrorKind = "system_error"
)

// CodeSuccess is returned in the envelope of every successful response.
const (
	CodeSuccess    = "0000"
	MessageSuccess = "Successfully completed"
)

// Error is a trading error with a stable code.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + " " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + " " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so wrapped copies still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

var (
	ErrSystem          = newError(KindSystemError, "9999", "System error")
	ErrParamValidation = newError(KindInvalidParam, "1000", "Param validation error")
	ErrNotFound        = newError(KindNotFound, "1001", "Resource not found")
	ErrOperationFailed = newError(KindOperationFailed, "1002", "Operation Failed")
	ErrUnauthorized    = newError(KindUnauthorized, "1003", "Unauthorized")
	ErrForbidden       = newError(KindForbidden, "1004", "Access denied")

	ErrUserNotFound      = newError(KindNotFound, "2001", "User not found or inactive")
	ErrUserAlreadyExists = newError(KindConflict, "2002", "User already exists")
	ErrUsernameExists    = newError(KindConflict, "2003", "User name already exists")
	ErrEmailExists       = newError(KindConflict, "2004", "Email already exists")
	ErrUserInactive      = newError(KindNotFound, "2005", "User is inactive")

	ErrAccountNotFound      = newError(KindNotFound, "3001", "Account not found or inactive")
	ErrAccountInactive      = newError(KindNotFound, "3002", "Account is inactive")
	ErrInsufficientBalance  = newError(KindInsufficientFunds, "3003", "Account insufficient balance")
	ErrAccountAlreadyExists = newError(KindConflict, "3004", "Account already exists")
	ErrInvalidAmount        = newError(KindInvalidAmount, "3005", "Invalid amount")
	ErrCurrencyNotSupported = newError(KindCurrencyUnsupported, "3006", "Currency is not supported")

	ErrMerchantNotFound   = newError(KindNotFound, "4001", "Merchant not found")
	ErrMerchantCodeExists = newError(KindConflict, "4002", "Merchant code already exists")
	ErrMerchantNameExists = newError(KindConflict, "4003", "Merchant name already exists")
	ErrMerchantInactive   = newError(KindNotFound, "4004", "Merchant is inactive")

	ErrProductNotFound     = newError(KindNotFound, "5001", "Product not found")
	ErrProductSkuExists    = newError(KindConflict, "5002", "Product sku already exists")
	ErrInsufficientStock   = newError(KindInsufficientStock, "5003", "Insufficient stock")
	ErrProductInactive     = newError(KindNotFound, "5004", "Product is inactive")
	ErrFailedToReduceStock = newError(KindOperationFailed, "5005", "Failed to reduce stock")

	ErrPurchaseRateLimited = newError(KindOperationFailed, "7005", "Too many purchase attempts")
)

// AsError extracts the trading error from err. Anything that is not a trading
// error is reported as a system error wrapping the original.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrSystem.Wrap(err)
}

// IsKind reports whether err is a trading error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
