package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	priceNumber = regexp.MustCompile(`\d+(\.\d+)?`)
	priceNoise  = strings.NewReplacer("$", "", "€", "", ",", "", " ", "", "\u00a0", "", "\u202f", "", "\t", "")
)

// ParsePrice converts a display price ("$1,299.00", "12 500 FCFA") to float64.
// Unparseable or negative input yields 0.
func ParsePrice(priceStr string) float64 {
	price, ok := parsePriceString(priceStr)
	if !ok {
		return 0
	}
	return price
}

// parsePriceString reads the first number of a display price. ok is false
// when there is no number or when it carries a minus sign. A blank string is
// a missing price.
func parsePriceString(priceStr string) (float64, bool) {
	// Remove currency symbols, thousands separators and spacing
	cleanPrice := priceNoise.Replace(strings.TrimSpace(priceStr))
	if cleanPrice == "" {
		return 0, true
	}

	loc := priceNumber.FindStringIndex(cleanPrice)
	if loc == nil {
		return 0, false
	}
	if loc[0] > 0 && cleanPrice[loc[0]-1] == '-' {
		return 0, false
	}

	price, err := strconv.ParseFloat(cleanPrice[loc[0]:loc[1]], 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// PriceValue reads a price from a decoded JSON value. Numbers are taken as is.
// Strings must hold a non-negative number, possibly wrapped in a currency
// ("12 500 FCFA"). A missing price (nil or a blank string) reads as 0 and is
// accepted. ok is false for any other type, for a string without a number,
// and for a negative or non-finite value.
func PriceValue(v any) (float64, bool) {
	var price float64
	switch val := v.(type) {
	case nil:
		return 0, true
	case float64:
		price = val
	case int:
		price = float64(val)
	case int64:
		price = float64(val)
	case string:
		var ok bool
		if price, ok = parsePriceString(val); !ok {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, false
	}
	return price, true
}

// ParseTime reads a timestamp from a decoded JSON value: RFC3339 strings
// (with or without fractional seconds), plain dates, or unix seconds.
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return time.Time{}, true
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		sec, frac := math.Modf(val)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case nil:
		return time.Time{}, true
	default:
		return time.Time{}, false
	}
}
