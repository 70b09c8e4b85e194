// Package core holds the domain model: transactions, tasks, goals, user
// stats and the pure monthly aggregation over them.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a decimal amount string to cents with
// half-up rounding on the third decimal place.
//
// Both dot (12.34) and comma (12,34) separators are accepted. The value
// must be positive; sign prefixes are rejected because the transaction
// type, not the amount, carries direction.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	cents := iv * 100

	switch len(fracPart) {
	case 0:
	case 1:
		d, _ := strconv.ParseInt(fracPart, 10, 64)
		cents += d * 10
	default:
		d, _ := strconv.ParseInt(fracPart[:2], 10, 64)
		cents += d
		if len(fracPart) > 2 && fracPart[2] >= '5' {
			cents++
		}
	}

	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// FloatToCents converts a non-negative decimal amount (as delivered by the
// assistant tool calls) to cents with half-up rounding.
func FloatToCents(amount float64) (int64, error) {
	if amount != amount || amount < 0 { // NaN or negative
		return 0, ErrInvalidAmount
	}
	cents := int64(amount*100 + 0.5)
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// FormatReais formats cents as a Brazilian Real string (e.g. "R$12,34").
func FormatReais(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	rem := cents % 100
	s := strconv.FormatInt(whole, 10) + "," + fmt.Sprintf("%02d", rem)
	if neg {
		return "-R$" + s
	}
	return "R$" + s
}
