package rule

import (
	"strconv"
	"time"
)

// WithExclusion appends an excluded instant. Repeated calls add repeated entries.
func (r Rule) WithExclusion(at time.Time) Rule {
	c := r.clone()
	c.exDates = append(c.exDates, newStamp(at))
	return c
}

// WithUntil sets the inclusive end bound, replacing any existing one.
func (r Rule) WithUntil(until time.Time) Rule {
	c := r.clone()
	st := newStamp(until)
	c.until = &st
	c.setToken(keyUntil, st.text())
	return c
}

// WithoutUntil removes the end bound.
func (r Rule) WithoutUntil() Rule {
	c := r.clone()
	c.until = nil
	c.dropToken(keyUntil)
	return c
}

// WithAnchor sets the DTSTART line, replacing any existing one.
func (r Rule) WithAnchor(anchor time.Time) Rule {
	c := r.clone()
	st := newStamp(anchor)
	c.anchor = &st
	return c
}

// WithWeekday sets BYDAY to the single weekday wd for weekly rules. Other
// frequencies are returned unchanged.
func (r Rule) WithWeekday(wd time.Weekday) Rule {
	if r.freq != Weekly {
		return r
	}
	c := r.clone()
	code := Weekday(wd)
	c.byDay = []string{code}
	c.setToken(keyByDay, code)
	return c
}

// WithCount sets COUNT. n < 1 removes it.
func (r Rule) WithCount(n int) Rule {
	if n < 1 {
		return r.WithoutCount()
	}
	c := r.clone()
	c.count = n
	c.setToken(keyCount, strconv.Itoa(n))
	return c
}

func (r Rule) WithoutCount() Rule {
	c := r.clone()
	c.count = 0
	c.dropToken(keyCount)
	return c
}

// AddExclusionDate appends an EXDATE entry for at to the rule string s.
func AddExclusionDate(s string, at time.Time) (string, error) {
	r, err := Parse(s)
	if err != nil {
		return "", err
	}
	return r.WithExclusion(at).String(), nil
}

// AddOrReplaceEndBound sets UNTIL on the rule string s. The result holds exactly
// one UNTIL token.
func AddOrReplaceEndBound(s string, until time.Time) (string, error) {
	r, err := Parse(s)
	if err != nil {
		return "", err
	}
	return r.WithUntil(until).String(), nil
}

// ReplaceAnchor sets the DTSTART line of s, inserting it when absent.
func ReplaceAnchor(s string, anchor time.Time) (string, error) {
	r, err := Parse(s)
	if err != nil {
		return "", err
	}
	return r.WithAnchor(anchor).String(), nil
}

// ReplaceWeeklyDaySelector sets BYDAY to the UTC weekday of day when s is a
// weekly rule. Any other rule is returned as is.
func ReplaceWeeklyDaySelector(s string, day time.Time) (string, error) {
	r, err := Parse(s)
	if err != nil {
		return "", err
	}
	if r.Freq() != Weekly {
		return s, nil
	}
	return r.WithWeekday(day.UTC().Weekday()).String(), nil
}
