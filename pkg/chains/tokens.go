package chains

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for amounts that are not a plain positive decimal number
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTooPrecise is returned when an amount has more fractional digits than the token supports
	ErrTooPrecise = errors.New("amount has more decimal places than the token supports")
)

// ToBaseUnits converts a decimal string such as "25.5" into the token's integer base units.
// The conversion is exact; amounts that cannot be represented are rejected rather than rounded.
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.ContainsAny(amount, "eE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, amount)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q with %d decimals", ErrTooPrecise, amount, decimals)
	}
	return scaled.BigInt(), nil
}

// ParsePositiveAmount is ToBaseUnits with the additional requirement that the result is greater than zero
func ParsePositiveAmount(amount string, decimals int32) (*big.Int, error) {
	base, err := ToBaseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	if base.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return base, nil
}

// FormatBaseUnits renders base units as a decimal string without trailing zeros
func FormatBaseUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// GetStandardizedAmount converts base units of a token into a float for display purposes only
func (r *Registry) GetStandardizedAmount(baseAmount *big.Int, chainID int, tokenType TokenType) (float64, error) {
	if baseAmount == nil {
		return 0, fmt.Errorf("amount is nil")
	}
	if baseAmount.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", baseAmount.String())
	}

	token, err := r.Token(chainID, tokenType)
	if err != nil {
		return 0, err
	}

	f, _ := decimal.NewFromBigInt(baseAmount, -token.Decimals).Float64()
	return f, nil
}
