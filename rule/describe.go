package rule

import (
	"fmt"
	"strings"
)

// CustomLabel is what Describe returns for rules it cannot summarize.
const CustomLabel = "Custom"

var dayNames = map[string]string{
	"MO": "Mon", "TU": "Tue", "WE": "Wed", "TH": "Thu", "FR": "Fri", "SA": "Sat", "SU": "Sun",
}

var unitNames = map[Frequency]string{
	Yearly:  "year",
	Monthly: "month",
	Weekly:  "week",
	Daily:   "day",
}

var plainNames = map[Frequency]string{
	Yearly:  "Yearly",
	Monthly: "Monthly",
	Weekly:  "Weekly",
	Daily:   "Daily",
}

// Describe returns a short human-readable label such as "Every 2 weeks on Tue, Thu".
// It never fails: unparseable or unusual rules are labelled CustomLabel.
func Describe(s string) string {
	r, err := Parse(s)
	if err != nil || r.hasExtraTokens() {
		return CustomLabel
	}

	var b strings.Builder
	n := r.Interval()
	if name, ok := plainNames[r.freq]; ok && n == 1 {
		b.WriteString(name)
	} else if n == 1 {
		b.WriteString("Every " + unitNames[r.freq])
	} else {
		fmt.Fprintf(&b, "Every %d %ss", n, unitNames[r.freq])
	}

	if len(r.byDay) > 0 {
		days := make([]string, 0, len(r.byDay))
		for _, d := range r.byDay {
			name, ok := dayNames[d]
			if !ok {
				// ordinal selectors like 2TU
				return CustomLabel
			}
			days = append(days, name)
		}
		b.WriteString(" on ")
		b.WriteString(strings.Join(days, ", "))
	}

	if c, ok := r.Count(); ok {
		if c == 1 {
			b.WriteString(", once")
		} else {
			fmt.Fprintf(&b, ", %d times", c)
		}
	}
	if u, ok := r.Until(); ok {
		b.WriteString(", until ")
		b.WriteString(u.Format("2006-01-02"))
	}
	return b.String()
}
