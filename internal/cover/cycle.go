// internal/cover/cycle.go
package cover

import (
	"strings"

	"CoverLedger/internal/errs"
)

// ChargeCycle is the billing period granularity. The premium rate
// config expresses a maximum charge per cycle, so the cycle length
// directly scales the minimum required account balance.
type ChargeCycle int32

const (
	CycleHourly ChargeCycle = iota
	CycleDaily
	CycleWeekly
	CycleMonthly
	CycleAnnually
)

// Second counts are fixed by convention. Monthly and annually use the
// mean Gregorian month and year, not calendar arithmetic.
const (
	secondsHourly   = 3600
	secondsDaily    = 86400
	secondsWeekly   = 604800
	secondsMonthly  = 2629746
	secondsAnnually = 31556952
)

func (c ChargeCycle) Valid() bool {
	return c >= CycleHourly && c <= CycleAnnually
}

func (c ChargeCycle) Seconds() int64 {
	switch c {
	case CycleHourly:
		return secondsHourly
	case CycleDaily:
		return secondsDaily
	case CycleWeekly:
		return secondsWeekly
	case CycleMonthly:
		return secondsMonthly
	case CycleAnnually:
		return secondsAnnually
	default:
		return 0
	}
}

func (c ChargeCycle) String() string {
	switch c {
	case CycleHourly:
		return "HOURLY"
	case CycleDaily:
		return "DAILY"
	case CycleWeekly:
		return "WEEKLY"
	case CycleMonthly:
		return "MONTHLY"
	case CycleAnnually:
		return "ANNUALLY"
	default:
		return "UNKNOWN"
	}
}

// ParseChargeCycle maps a config-file or API string to a cycle.
func ParseChargeCycle(s string) (ChargeCycle, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOURLY":
		return CycleHourly, nil
	case "DAILY":
		return CycleDaily, nil
	case "WEEKLY":
		return CycleWeekly, nil
	case "MONTHLY":
		return CycleMonthly, nil
	case "ANNUALLY":
		return CycleAnnually, nil
	default:
		return 0, errs.Newf(errs.Validation, "unknown charge cycle %q", s)
	}
}
