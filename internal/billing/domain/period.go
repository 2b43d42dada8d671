package billing

import (
	"fmt"
	"strings"
	"time"
)

// Period is the billing cycle key: one calendar month.
type Period struct {
	Year  int
	Month time.Month
}

var monthLabels = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// PeriodOf truncates a reference date to its month.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts YYYY-MM or YYYY-MM-DD.
func ParsePeriod(value string) (Period, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Period{}, fmt.Errorf("%w: empty", ErrInvalidPeriod)
	}
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return PeriodOf(t), nil
		}
	}
	return Period{}, fmt.Errorf("%w: %q must be YYYY-MM", ErrInvalidPeriod, value)
}

// IsZero reports whether the period was never set.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Start returns the first instant of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label is the short display label printed on bills, e.g. "Ago-2024".
func (p Period) Label() string {
	if p.Month < time.January || p.Month > time.December {
		return p.String()
	}
	return fmt.Sprintf("%s-%04d", monthLabels[p.Month-1], p.Year)
}

// LockKey is the YYYYMM integer used to key per-period advisory locks.
func (p Period) LockKey() int32 {
	return int32(p.Year*100 + int(p.Month))
}
