package task

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate(t *testing.T) {
	d := MustParseDate("2026-01-31")
	assert.Equal(t, "2026-01-31", d.String())
	assert.Equal(t, "20260131", d.Compact())
	assert.Equal(t, MustParseDate("2026-02-01"), d.AddDays(1))
	assert.Equal(t, time.Saturday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, 0, d.Compare(NewDate(2026, 1, 31)))
	assert.Equal(t, NewDate(2026, 2, 1), NewDate(2026, 1, 32))

	clock := time.Date(1999, 5, 5, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 31, 9, 30, 0, 0, time.UTC), d.At(clock))

	_, err := ParseDate("31/01/2026")
	assert.Error(t, err)

	var back Date
	b, err := d.MarshalText()
	require.NoError(t, err)
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, d, back)
}

func TestTask_AnchorAndShift(t *testing.T) {
	start := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	timed := Task{
		DueDate:   Ptr(MustParseDate("2026-01-20")),
		StartTime: &start,
		EndTime:   &end,
	}

	anchor, ok := timed.Anchor()
	require.True(t, ok)
	assert.Equal(t, start, anchor)

	s, e := timed.ShiftTo(MustParseDate("2026-03-02"))
	require.NotNil(t, s)
	require.NotNil(t, e)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *s)
	assert.Equal(t, 90*time.Minute, e.Sub(*s))

	allDay := Task{DueDate: Ptr(MustParseDate("2026-01-20"))}
	anchor, ok = allDay.Anchor()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), anchor)
	s, e = allDay.ShiftTo(MustParseDate("2026-01-21"))
	assert.Nil(t, s)
	assert.Nil(t, e)

	_, ok = Task{}.Anchor()
	assert.False(t, ok)
}

func TestTask_Clone(t *testing.T) {
	start := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	orig := Task{
		ID:             "a",
		DueDate:        Ptr(MustParseDate("2026-01-20")),
		StartTime:      &start,
		RecurrenceRule: Ptr("FREQ=DAILY"),
	}
	c := orig.Clone()
	*c.DueDate = MustParseDate("2027-01-01")
	*c.RecurrenceRule = "FREQ=WEEKLY"
	*c.StartTime = start.Add(time.Hour)

	assert.Equal(t, MustParseDate("2026-01-20"), *orig.DueDate)
	assert.Equal(t, "FREQ=DAILY", *orig.RecurrenceRule)
	assert.Equal(t, start, *orig.StartTime)
}

func TestPatch_Apply(t *testing.T) {
	start := time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)
	tk := Task{
		Title:          "old",
		StartTime:      &start,
		RecurrenceRule: Ptr("FREQ=DAILY"),
	}

	assert.True(t, Patch{}.IsEmpty())

	p := Patch{
		Title:          mo.Some("new"),
		StartTime:      mo.Some[*time.Time](nil),
		RecurrenceRule: mo.Some[*string](nil),
		IsCompleted:    mo.Some(true),
	}
	assert.False(t, p.IsEmpty())
	p.Apply(&tk)

	assert.Equal(t, "new", tk.Title)
	assert.Nil(t, tk.StartTime)
	assert.Nil(t, tk.RecurrenceRule)
	assert.False(t, tk.IsRecurring())
	assert.True(t, tk.IsCompleted)
}

func TestExceptions(t *testing.T) {
	d := MustParseDate("2026-01-11")
	assert.Equal(t, "m1_2026-01-11", ExceptionKey("m1", d))

	set := ExceptionSet{}
	set[d] = StatusCompleted
	set[d.AddDays(-1)] = StatusSkipped
	keyed := set.Keyed("m1")
	st, ok := keyed.Lookup("m1", d)
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, st)
	_, ok = keyed.Lookup("m2", d)
	assert.False(t, ok)

	assert.Equal(t, []Date{d.AddDays(-1), d}, set.Dates())

	var nilMap Exceptions
	_, ok = nilMap.Lookup("m1", d)
	assert.False(t, ok)

	assert.True(t, StatusArchived.Hidden())
	assert.False(t, StatusCompleted.Hidden())
	parsed, err := ParseExceptionStatus(" Skipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, parsed)
	_, err = ParseExceptionStatus("done")
	assert.Error(t, err)
}

func TestOccurrenceRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OccurrenceRef
		wantErr bool
	}{
		{name: "real", input: "abc-123", want: RealRef{TaskID: "abc-123"}},
		{name: "virtual", input: "abc_recur_20260121", want: VirtualRef{MasterID: "abc", Date: MustParseDate("2026-01-21")}},
		{name: "empty", input: "", wantErr: true},
		{name: "no master", input: "_recur_20260121", wantErr: true},
		{name: "bad date", input: "abc_recur_2026", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}
