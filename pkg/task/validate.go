package task

import (
	"fmt"
	"time"
)

// ValidateExpiry rejects expiry times that are not strictly after now.
func ValidateExpiry(now, expiry time.Time) error {
	if !expiry.After(now) {
		return fmt.Errorf("%w: expiryTime must be in the future", ErrInvalidInput)
	}
	return nil
}

// ValidatePercent rejects completion percentages outside [0,100].
func ValidatePercent(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: completePercent must be between 0 and 100", ErrInvalidInput)
	}
	return nil
}
