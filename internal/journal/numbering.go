package journal

import (
	"fmt"
	"time"
)

// Numbering maps entry dates to fiscal years and formats entry numbers.
type Numbering struct {
	// StartMonth is the first month of the fiscal year. Zero means January.
	StartMonth time.Month
}

// FiscalYear returns the label of the fiscal year containing date: the
// calendar year in which that fiscal year starts.
func (n Numbering) FiscalYear(date time.Time) int {
	start := n.StartMonth
	if start < time.January || start > time.December {
		start = time.January
	}
	y, m, _ := date.Date()
	if m < start {
		return y - 1
	}
	return y
}

// Format returns the entry number for counter value seq in fiscal year fy.
func (n Numbering) Format(fy int, seq int64) string {
	return FormatEntryNumber(fy, seq)
}

// FormatEntryNumber renders e.g. JE-2026-0001.
func FormatEntryNumber(fy int, seq int64) string {
	return fmt.Sprintf("JE-%d-%04d", fy, seq)
}

// ParseEntryNumber is the inverse of FormatEntryNumber.
func ParseEntryNumber(s string) (fy int, seq int64, err error) {
	if _, err := fmt.Sscanf(s, "JE-%d-%d", &fy, &seq); err != nil {
		return 0, 0, fmt.Errorf("parse entry number %q: %w", s, err)
	}
	if seq <= 0 {
		return 0, 0, fmt.Errorf("parse entry number %q: sequence must be positive", s)
	}
	return fy, seq, nil
}
