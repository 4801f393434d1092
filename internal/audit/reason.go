package audit

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinReasonLength is the shortest reason accepted for a destructive action,
// counted in runes after trimming.
const MinReasonLength = 10

// ErrReasonTooShort is returned when a destructive action carries a reason
// shorter than MinReasonLength.
var ErrReasonTooShort = errors.New("reason is too short")

// ValidateReason trims reason and checks its length. It returns the trimmed text.
func ValidateReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmed) < MinReasonLength {
		return "", fmt.Errorf("%w: at least %d characters are required", ErrReasonTooShort, MinReasonLength)
	}
	return trimmed, nil
}
