// Package rule implements the recurrence rule model used by recurring tasks.
//
// A rule is stored as text:
//
//	DTSTART:20260120T090000Z
//	RRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=TU
//	EXDATE:20260127T090000Z
//
// The DTSTART and EXDATE lines are optional and the RRULE line may be written
// without its "RRULE:" prefix. Parse turns the text into a Rule, String turns it
// back; tokens and values that a mutation does not touch are written back
// exactly as they were read.
package rule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// StampLayout is the compact UTC timestamp form used on the wire.
const StampLayout = "20060102T150405Z"

const (
	keyFreq     = "FREQ"
	keyInterval = "INTERVAL"
	keyByDay    = "BYDAY"
	keyCount    = "COUNT"
	keyUntil    = "UNTIL"

	propAnchor = "DTSTART"
	propRule   = "RRULE"
	propExDate = "EXDATE"
)

var byDayPattern = regexp.MustCompile(`^[+-]?[0-9]{0,2}(MO|TU|WE|TH|FR|SA|SU)$`)

// Frequency is the FREQ token.
type Frequency int

const (
	Yearly Frequency = iota
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

var frequencyNames = []string{"YEARLY", "MONTHLY", "WEEKLY", "DAILY", "HOURLY", "MINUTELY", "SECONDLY"}

func (f Frequency) String() string {
	if f < 0 || int(f) >= len(frequencyNames) {
		return "UNKNOWN"
	}
	return frequencyNames[f]
}

func parseFrequency(s string) (Frequency, bool) {
	for i, name := range frequencyNames {
		if strings.EqualFold(name, s) {
			return Frequency(i), true
		}
	}
	return 0, false
}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Weekday returns the two-letter BYDAY code of wd.
func Weekday(wd time.Weekday) string {
	return weekdayCodes[wd]
}

// stamp is a UTC instant plus the text it was read from, if any.
type stamp struct {
	t   time.Time
	raw string
}

func newStamp(t time.Time) stamp {
	return stamp{t: t.UTC().Truncate(time.Second)}
}

func (s stamp) text() string {
	if s.raw != "" {
		return s.raw
	}
	return s.t.Format(StampLayout)
}

func parseStamp(v string) (stamp, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{StampLayout, "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, strings.ToUpper(v)); err == nil {
			return stamp{t: t.UTC(), raw: v}, nil
		}
	}
	return stamp{}, strconv.ErrSyntax
}

// token is one KEY=VALUE part of the RRULE line. key is upper-cased for
// lookups; name and raw keep the text as written. A part that has not been
// changed since parsing is written back as raw, including empty parts.
type token struct {
	key      string
	name     string
	value    string
	raw      string
	verbatim bool
}

func (t token) text() string {
	if t.verbatim {
		return t.raw
	}
	name := t.name
	if name == "" {
		name = t.key
	}
	return name + "=" + t.value
}

// Rule is the parsed form of a recurrence rule. The zero value is not valid; use
// Parse or New. Rule values are immutable: every With method returns a copy.
type Rule struct {
	freq     Frequency
	interval int
	byDay    []string
	count    int
	until    *stamp
	anchor   *stamp
	exDates  []stamp

	// tokens is the RRULE line in its original order, including tokens that
	// have no dedicated field.
	tokens []token
	// bare is set when the RRULE line was read without its "RRULE:" prefix.
	bare bool
}

// New returns a rule with only FREQ set.
func New(freq Frequency) Rule {
	return Rule{
		freq:   freq,
		tokens: []token{{key: keyFreq, value: freq.String()}},
	}
}

// Parse reads a rule string. Any error wraps ErrMalformedRule.
func Parse(s string) (Rule, error) {
	var r Rule
	sawRule := false

	lines := strings.FieldsFunc(s, func(c rune) bool { return c == '\n' || c == '\r' })
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, params, value, isProp := splitProperty(line)
		switch {
		case isProp && name == propAnchor:
			if err := checkParams(params); err != nil {
				return Rule{}, malformed(s, "DTSTART", err)
			}
			st, err := parseStamp(value)
			if err != nil {
				return Rule{}, malformed(s, "bad DTSTART value "+value, err)
			}
			r.anchor = &st
		case isProp && name == propExDate:
			if err := checkParams(params); err != nil {
				return Rule{}, malformed(s, "EXDATE", err)
			}
			for _, v := range strings.Split(value, ",") {
				if strings.TrimSpace(v) == "" {
					continue
				}
				st, err := parseStamp(v)
				if err != nil {
					return Rule{}, malformed(s, "bad EXDATE value "+v, err)
				}
				r.exDates = append(r.exDates, st)
			}
		case isProp && name == propRule:
			if sawRule {
				return Rule{}, malformed(s, "more than one RRULE line", nil)
			}
			sawRule = true
			if err := r.parseTokens(value); err != nil {
				return Rule{}, malformed(s, err.Error(), nil)
			}
		case !isProp && strings.Contains(line, "="):
			if sawRule {
				return Rule{}, malformed(s, "more than one RRULE line", nil)
			}
			sawRule = true
			r.bare = true
			if err := r.parseTokens(line); err != nil {
				return Rule{}, malformed(s, err.Error(), nil)
			}
		default:
			return Rule{}, malformed(s, "unexpected line "+strconv.Quote(line), nil)
		}
	}

	if !sawRule {
		return Rule{}, malformed(s, "no RRULE part", nil)
	}
	// Exceptions and derived tasks are keyed by calendar date, so a rule may
	// produce at most one occurrence per day.
	if r.freq > Daily {
		return Rule{}, malformed(s, "frequency "+r.freq.String()+" repeats within a day", nil)
	}
	for _, t := range r.tokens {
		switch t.key {
		case "BYHOUR", "BYMINUTE", "BYSECOND":
			if strings.Contains(t.value, ",") {
				return Rule{}, malformed(s, t.key+" list repeats within a day", nil)
			}
		}
	}
	opt, err := rrule.StrToROption(strings.ToUpper(r.canonical()))
	if err != nil {
		return Rule{}, malformed(s, "rejected by rrule", err)
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return Rule{}, malformed(s, "rejected by rrule", err)
	}
	return r, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Rule {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate reports whether s is a usable rule string.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// splitProperty splits "NAME;PARAM=X:VALUE". isProp is false for lines without a colon,
// which can only be a bare RRULE line.
func splitProperty(line string) (name string, params []string, value string, isProp bool) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", nil, "", false
	}
	parts := strings.Split(head, ";")
	return strings.ToUpper(strings.TrimSpace(parts[0])), parts[1:], value, true
}

func checkParams(params []string) error {
	for _, p := range params {
		k, v, _ := strings.Cut(p, "=")
		switch strings.ToUpper(k) {
		case "VALUE":
			if !strings.EqualFold(v, "DATE") && !strings.EqualFold(v, "DATE-TIME") {
				return strconv.ErrSyntax
			}
		default:
			// TZID and friends: only UTC values are supported.
			return strconv.ErrSyntax
		}
	}
	return nil
}

func (r *Rule) parseTokens(line string) error {
	sawFreq := false
	for _, part := range strings.Split(line, ";") {
		if strings.TrimSpace(part) == "" {
			r.tokens = append(r.tokens, token{raw: part, verbatim: true})
			continue
		}
		name, v, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		k := strings.ToUpper(name)
		v = strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return &tokenError{part: part}
		}

		switch k {
		case keyFreq:
			f, ok := parseFrequency(v)
			if !ok {
				return &tokenError{part: part}
			}
			r.freq = f
			sawFreq = true
		case keyInterval:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return &tokenError{part: part}
			}
			r.interval = n
		case keyByDay:
			var days []string
			for _, d := range strings.Split(strings.ToUpper(v), ",") {
				d = strings.TrimSpace(d)
				if !byDayPattern.MatchString(d) {
					return &tokenError{part: part}
				}
				days = append(days, d)
			}
			r.byDay = days
		case keyCount:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return &tokenError{part: part}
			}
			r.count = n
		case keyUntil:
			st, err := parseStamp(v)
			if err != nil {
				return &tokenError{part: part}
			}
			r.until = &st
		}
		r.addParsedToken(token{key: k, name: name, value: v, raw: part, verbatim: true})
	}
	if !sawFreq {
		return &tokenError{part: "missing FREQ"}
	}
	return nil
}

type tokenError struct {
	part string
}

func (e *tokenError) Error() string {
	return "bad rule token " + strconv.Quote(e.part)
}

// addParsedToken appends t, or lets it overwrite an earlier part with the same key.
func (r *Rule) addParsedToken(t token) {
	for i := range r.tokens {
		if r.tokens[i].key == t.key {
			r.tokens[i].value = t.value
			r.tokens[i].verbatim = false
			return
		}
	}
	r.tokens = append(r.tokens, t)
}

// setToken replaces the value of key in place, keeping the key as it was
// written, or appends the key if absent.
func (r *Rule) setToken(key, value string) {
	for i := range r.tokens {
		if r.tokens[i].key == key {
			r.tokens[i].value = value
			r.tokens[i].verbatim = false
			return
		}
	}
	r.tokens = append(r.tokens, token{key: key, value: value})
}

func (r *Rule) dropToken(key string) {
	out := r.tokens[:0]
	for _, t := range r.tokens {
		if t.key != key {
			out = append(out, t)
		}
	}
	r.tokens = out
}

func (r Rule) tokenString() string {
	parts := make([]string, len(r.tokens))
	for i, t := range r.tokens {
		parts[i] = t.text()
	}
	return strings.Join(parts, ";")
}

// canonical is the RRULE value with upper-case keys and no empty parts.
func (r Rule) canonical() string {
	parts := make([]string, 0, len(r.tokens))
	for _, t := range r.tokens {
		if t.key == "" {
			continue
		}
		parts = append(parts, t.key+"="+t.value)
	}
	return strings.Join(parts, ";")
}

// String serializes the rule: DTSTART line, RRULE line, then one EXDATE line per
// excluded instant.
func (r Rule) String() string {
	lines := make([]string, 0, 2+len(r.exDates))
	if r.anchor != nil {
		lines = append(lines, propAnchor+":"+r.anchor.text())
	}
	if r.bare {
		lines = append(lines, r.tokenString())
	} else {
		lines = append(lines, propRule+":"+r.tokenString())
	}
	for _, ex := range r.exDates {
		lines = append(lines, propExDate+":"+ex.text())
	}
	return strings.Join(lines, "\n")
}

// Value returns the RRULE tokens without the property name, the form iCalendar
// writes as the RRULE value.
func (r Rule) Value() string { return r.canonical() }

func (r Rule) Freq() Frequency { return r.freq }

// Interval returns INTERVAL, defaulting to 1.
func (r Rule) Interval() int {
	if r.interval == 0 {
		return 1
	}
	return r.interval
}

// ByDay returns the BYDAY entries, e.g. ["MO", "2TU"].
func (r Rule) ByDay() []string {
	return append([]string(nil), r.byDay...)
}

func (r Rule) Count() (int, bool) {
	return r.count, r.count > 0
}

func (r Rule) Until() (time.Time, bool) {
	if r.until == nil {
		return time.Time{}, false
	}
	return r.until.t, true
}

func (r Rule) Anchor() (time.Time, bool) {
	if r.anchor == nil {
		return time.Time{}, false
	}
	return r.anchor.t, true
}

func (r Rule) ExDates() []time.Time {
	out := make([]time.Time, len(r.exDates))
	for i, ex := range r.exDates {
		out[i] = ex.t
	}
	return out
}

// hasExtraTokens reports whether the rule uses tokens beyond FREQ, INTERVAL,
// BYDAY, COUNT, UNTIL and WKST.
func (r Rule) hasExtraTokens() bool {
	for _, t := range r.tokens {
		switch t.key {
		case "", keyFreq, keyInterval, keyByDay, keyCount, keyUntil, "WKST":
		default:
			return true
		}
	}
	return false
}

// ROption returns the rrule-go options for this rule anchored at dtstart.
func (r Rule) ROption(dtstart time.Time) (rrule.ROption, error) {
	opt, err := rrule.StrToROption(strings.ToUpper(r.canonical()))
	if err != nil {
		return rrule.ROption{}, malformed(r.String(), "rejected by rrule", err)
	}
	opt.Dtstart = dtstart.UTC()
	return *opt, nil
}

// RRule builds an rrule-go iterator source anchored at dtstart. The rule's own
// DTSTART line is ignored.
func (r Rule) RRule(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := r.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, malformed(r.String(), "rejected by rrule", err)
	}
	return rr, nil
}

func (r Rule) clone() Rule {
	c := r
	c.byDay = append([]string(nil), r.byDay...)
	c.exDates = append([]stamp(nil), r.exDates...)
	c.tokens = append([]token(nil), r.tokens...)
	if r.until != nil {
		u := *r.until
		c.until = &u
	}
	if r.anchor != nil {
		a := *r.anchor
		c.anchor = &a
	}
	return c
}
