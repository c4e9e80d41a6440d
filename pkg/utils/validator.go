package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateCurrency checks for a three-letter uppercase currency code
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %q", currency)
	}
	return nil
}

// ValidateAmount checks a monetary amount in minor units
func ValidateAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %d", amount)
	}
	return nil
}

// ValidateJSON checks that a payload is well-formed JSON. Empty is
// accepted and treated as an empty object by the engine.
func ValidateJSON(payload string) error {
	if payload == "" {
		return nil
	}
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}
	return nil
}
