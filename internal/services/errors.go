package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means a referenced account or record does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the caller lacks the permission for an operation
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed input to a public operation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError reports a payout larger than the available balance
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s",
		e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// notFound maps gorm's missing-row error onto ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// fromValidator turns the first struct validation failure into a ValidationError
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "email":
		return invalid(field, "must be a valid email address")
	default:
		return invalid(field, "failed %s validation", fe.Tag())
	}
}
