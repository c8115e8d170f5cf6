package core

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	DefaultReportingMonth  = 8
	DefaultReadinessWindow = 7 * 24 * time.Hour
)

var monthLabels = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Calendar fixes the reporting month and the editable forward months for a
// deployment. It is configuration, never derived from the current date.
type Calendar struct {
	ReportingMonth  int
	ForwardMonths   []int
	ReadinessWindow time.Duration
}

// DefaultCalendar reports through August with September to December open for
// forecasting.
func DefaultCalendar() Calendar {
	return Calendar{
		ReportingMonth:  DefaultReportingMonth,
		ForwardMonths:   []int{9, 10, 11, 12},
		ReadinessWindow: DefaultReadinessWindow,
	}
}

func (c Calendar) Validate() error {
	if c.ReportingMonth < 1 || c.ReportingMonth > 12 {
		return fmt.Errorf("reporting month %d: %w", c.ReportingMonth, ErrInvalidMonth)
	}
	if len(c.ForwardMonths) == 0 {
		return errors.New("at least one forward month is required")
	}
	for _, m := range c.ForwardMonths {
		if m < 1 || m > 12 {
			return fmt.Errorf("forward month %d: %w", m, ErrInvalidMonth)
		}
		if m <= c.ReportingMonth {
			return fmt.Errorf("forward month %d is not after reporting month %d", m, c.ReportingMonth)
		}
	}
	if c.ReadinessWindow <= 0 {
		return errors.New("readiness window must be positive")
	}
	return nil
}

// IsForward reports whether month accepts forecast edits.
func (c Calendar) IsForward(month int) bool {
	return slices.Contains(c.ForwardMonths, month)
}

// MonthLabel returns the short English name of month 1-12.
func MonthLabel(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthLabels[month-1]
}
