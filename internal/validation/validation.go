package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

var (
	validate = validator.New()
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Struct validates request tags and returns a readable InvalidOperation error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidOperation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ledger.ErrInvalidOperation, strings.Join(msgs, "; "))
}

// MinorUnits converts a JSON amount to int64 minor units. Sign is left to the
// engine; fractional and out-of-range values are rejected here.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsInteger() {
		return 0, fmt.Errorf("%w: amount must be a whole number of minor units", ledger.ErrInvalidAmount)
	}
	if amount.GreaterThan(maxInt64) || amount.LessThan(minInt64) {
		return 0, fmt.Errorf("%w: amount out of range", ledger.ErrInvalidAmount)
	}
	return amount.IntPart(), nil
}

// WalletID parses a path or body wallet id into canonical form.
func WalletID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid wallet id", ledger.ErrInvalidOperation)
	}
	return id.String(), nil
}
