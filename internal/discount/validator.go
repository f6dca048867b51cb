package discount

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCode = errors.New("invalid discount code")

const (
	minCodeLength = 4
	maxCodeLength = 20
)

// Validate trims and uppercases code and checks its format. It returns the
// normalised code on success.
func Validate(code string) (string, error) {
	clean := strings.ToUpper(strings.TrimSpace(code))
	if clean == "" {
		return "", fmt.Errorf("%w: code is required", ErrInvalidCode)
	}
	if len(clean) < minCodeLength {
		return clean, fmt.Errorf("%w: too short (minimum %d characters)", ErrInvalidCode, minCodeLength)
	}
	if len(clean) > maxCodeLength {
		return clean, fmt.Errorf("%w: too long (maximum %d characters)", ErrInvalidCode, maxCodeLength)
	}
	for _, r := range clean {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return clean, fmt.Errorf("%w: only letters and numbers are allowed", ErrInvalidCode)
		}
	}
	return clean, nil
}
