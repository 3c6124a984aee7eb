package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/financeflow/backend/src/logger"
	"github.com/shopspring/decimal"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength  = 255
	MaxCurrencyCodeLength   = 3
	MaxExternalIDLength     = 255
	MaxCategoryLength       = 100
	MaxDescriptionLength    = 1024
	MaxRequestTokenLength   = 2048
	transactionDateLayout   = "2006-01-02"
	maxTransactionAmountStr = "1000000000"
)

var maxTransactionAmount = decimal.RequireFromString(maxTransactionAmountStr)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Specific Format Validators ---

var (
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	requestTokenRegex = regexp.MustCompile(`^[A-Za-z0-9._~+/=-]+$`)
)

// ValidateCurrencyCode normalizes s to upper case and checks it is three letters.
func ValidateCurrencyCode(s string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if err := ValidateStringNotEmpty(normalized, "Currency Code"); err != nil {
		return "", err
	}
	if err := ValidateStringMaxLength(normalized, MaxCurrencyCodeLength, "Currency Code"); err != nil {
		return "", err
	}
	if !currencyCodeRegex.MatchString(normalized) {
		return "", fmt.Errorf("%w: Currency Code ('%s') is not in the expected format (3 uppercase letters)", ErrValidationFailed, s)
	}
	return normalized, nil
}

// ValidateExternalID checks a provider-issued identifier.
func ValidateExternalID(s, fieldName string) error {
	if err := ValidateStringNotEmpty(s, fieldName); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(s, MaxExternalIDLength, fieldName); err != nil {
		return err
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: %s contains whitespace or control characters", ErrValidationFailed, fieldName)
		}
	}
	return nil
}

// ValidateAmount rejects negative and implausibly large amounts.
func ValidateAmount(d decimal.Decimal, fieldName string) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s cannot be negative", ErrValidationFailed, fieldName)
	}
	if d.GreaterThan(maxTransactionAmount) {
		logger.L.Warn("Amount out of range", "field", fieldName, "value", d.String())
		return fmt.Errorf("%w: %s must not exceed %s, got %s", ErrValidationFailed, fieldName, maxTransactionAmountStr, d.String())
	}
	return nil
}

// ValidateDateString checks if a string is a valid date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(transactionDateLayout, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD): %v", ErrValidationFailed, fieldName, s, err)
	}
	return t, nil
}

// ValidateRequestToken checks opaque tokens posted by the client (Plaid public
// tokens, OAuth authorization codes).
func ValidateRequestToken(s, fieldName string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxRequestTokenLength, fieldName); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, requestTokenRegex, fieldName, "URL-safe token characters")
}
