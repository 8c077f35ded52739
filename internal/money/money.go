// Package money converts decimal amounts to integer minor currency units using
// the ISO 4217 scale of each currency.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

// MaxMinor is the largest magnitude, in minor units, that converts exactly
// through float64.
const MaxMinor int64 = 1 << 53

var (
	// ErrUnknownCurrency is returned for codes that are not ISO 4217 currencies.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrAmountOutOfRange is returned for amounts beyond MaxMinor minor units.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// InRange reports whether minor is within MaxMinor of zero.
func InRange(minor int64) bool {
	return minor >= -MaxMinor && minor <= MaxMinor
}

// ParseCurrency validates a three-letter ISO code, case-insensitively.
func ParseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%q: %w", code, ErrUnknownCurrency)
	}
	return unit, nil
}

// Scale is the number of minor-unit digits of the currency (2 for USD, 0 for JPY).
func Scale(unit currency.Unit) int {
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// ToMinor converts a decimal amount to minor units, rounding half away from zero.
func ToMinor(amount float64, code string) (int64, error) {
	unit, err := ParseCurrency(code)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid amount %v", amount)
	}
	scaled := math.Round(amount * math.Pow10(Scale(unit)))
	if math.Abs(scaled) > float64(MaxMinor) {
		return 0, fmt.Errorf("%v %s: %w", amount, unit, ErrAmountOutOfRange)
	}
	return int64(scaled), nil
}

// ParseMinor parses a decimal string such as "19.99" into minor units.
func ParseMinor(amount, code string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return ToMinor(f, code)
}

// FormatMinor renders minor units as a decimal string followed by the code.
func FormatMinor(minor int64, code string) string {
	unit, err := ParseCurrency(code)
	if err != nil {
		return fmt.Sprintf("%d %s", minor, code)
	}
	scale := Scale(unit)
	value := float64(minor) / math.Pow10(scale)
	return fmt.Sprintf("%s %s", strconv.FormatFloat(value, 'f', scale, 64), unit.String())
}
