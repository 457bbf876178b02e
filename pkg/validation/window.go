// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"fmt"
	"time"
)

const (
	// MinWindow is the smallest lookback window a query may request.
	MinWindow = 1 * time.Hour

	// MaxWindow is the largest lookback window a query may request.
	// One year of hours; anything wider turns recency decay into noise
	// and blows the relational scan budget.
	MaxWindow = 8760 * time.Hour
)

// ValidateWindow validates an evidence lookback window.
//
// A zero window is valid and means "use the mode default". Negative windows
// and windows outside [MinWindow, MaxWindow] are rejected.
func ValidateWindow(window time.Duration) error {
	if window == 0 {
		return nil
	}
	if window < 0 {
		return fmt.Errorf("window cannot be negative: %s", window)
	}
	if window < MinWindow || window > MaxWindow {
		return fmt.Errorf("window %s out of range [%s, %s]", window, MinWindow, MaxWindow)
	}
	return nil
}

// ValidateWindowHours validates a lookback window expressed in whole hours,
// the unit the HTTP surface accepts.
func ValidateWindowHours(hours int) error {
	return ValidateWindow(time.Duration(hours) * time.Hour)
}
