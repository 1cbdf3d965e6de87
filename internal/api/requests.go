package api

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/however6234/trading-system/internal/domain"
)

var merchantCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type createUserRequest struct {
	UserName string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
}

type rechargeRequest struct {
	Amount   domain.Money `json:"amount" validate:"gte=0.01"`
	Currency string       `json:"currency" validate:"omitempty,len=3,alpha"`
}

type createMerchantRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
	Code string `json:"code" validate:"required,min=3,max=50,merchant_code"`
}

type addProductRequest struct {
	SKU           string       `json:"sku" validate:"required,max=64"`
	Name          string       `json:"name" validate:"required,max=200"`
	Description   string       `json:"description" validate:"max=1000"`
	Price         domain.Money `json:"price" validate:"gte=0.01"`
	StockQuantity int          `json:"stock_quantity" validate:"gte=0"`
}

type increaseStockRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type purchaseRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	MerchantID int64  `json:"merchant_id" validate:"required,gt=0"`
	SKU        string `json:"sku" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gte=1"`
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// Money is validated as a number so gte/lte tags apply to amounts.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if m, ok := field.Interface().(domain.Money); ok {
			f, _ := m.Decimal().Float64()
			return f
		}
		return nil
	}, domain.Money{})

	_ = v.RegisterValidation("merchant_code", func(fl validator.FieldLevel) bool {
		return merchantCodePattern.MatchString(fl.Field().String())
	})

	return v
}

// formatValidationError renders validator failures as one readable line.
func formatValidationError(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have minimum length %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must have maximum length %s", field, e.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "merchant_code":
			msgs = append(msgs, fmt.Sprintf("%s may only contain letters, digits, '_' and '-'", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
