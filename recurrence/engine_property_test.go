package recurrence

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/cyp0633/librecur/task"
)

type genSeries struct {
	master task.Task
	count  int // 0 when unbounded
	until  *task.Date
	ex     task.ExceptionSet
}

func genDate(t *rapid.T, label string) task.Date {
	base := task.NewDate(2026, time.January, 1)
	return base.AddDays(rapid.IntRange(0, 120).Draw(t, label))
}

func genMaster(t *rapid.T) genSeries {
	anchor := genDate(t, "anchor")
	var g genSeries

	var ruleText string
	switch rapid.IntRange(0, 2).Draw(t, "freq") {
	case 0:
		ruleText = fmt.Sprintf("FREQ=DAILY;INTERVAL=%d", rapid.IntRange(1, 4).Draw(t, "interval"))
	case 1:
		ruleText = "FREQ=WEEKLY;BYDAY=MO,WE,FR"
	default:
		ruleText = "FREQ=MONTHLY"
	}
	if rapid.Bool().Draw(t, "hasCount") {
		g.count = rapid.IntRange(1, 20).Draw(t, "count")
		ruleText += fmt.Sprintf(";COUNT=%d", g.count)
	} else if rapid.Bool().Draw(t, "hasUntil") {
		u := anchor.AddDays(rapid.IntRange(0, 60).Draw(t, "untilOffset"))
		g.until = &u
		ruleText += ";UNTIL=" + u.Compact() + "T235959Z"
	}

	g.master = task.Task{ID: "m", DueDate: &anchor, RecurrenceRule: &ruleText}
	if rapid.Bool().Draw(t, "timed") {
		start := anchor.Midnight().Add(time.Duration(rapid.IntRange(0, 23).Draw(t, "hour")) * time.Hour)
		end := start.Add(time.Duration(rapid.IntRange(0, 300).Draw(t, "minutes")) * time.Minute)
		g.master.StartTime = &start
		g.master.EndTime = &end
	}

	statuses := []task.ExceptionStatus{task.StatusCompleted, task.StatusSkipped, task.StatusArchived}
	g.ex = task.ExceptionSet{}
	n := rapid.IntRange(0, 10).Draw(t, "nExceptions")
	for i := 0; i < n; i++ {
		day := anchor.AddDays(rapid.IntRange(0, 60).Draw(t, "exOffset"))
		g.ex[day] = statuses[rapid.IntRange(0, 2).Draw(t, "status")]
	}
	return g
}

func TestPropertyExpand(t *testing.T) {
	engine := NewEngine()

	rapid.Check(t, func(t *rapid.T) {
		g := genMaster(t)
		from := genDate(t, "from")
		to := from.AddDays(rapid.IntRange(0, 200).Draw(t, "span"))

		occs, err := engine.Expand(g.master, from, to, g.ex.Keyed("m"))
		if err != nil {
			t.Fatalf("expand: %v", err)
		}

		// completed occurrences in the window must all show up once
		unbounded, err := engine.Expand(g.master, from, to, nil)
		if err != nil {
			t.Fatalf("expand without exceptions: %v", err)
		}
		if g.count > 0 && len(unbounded) > g.count {
			t.Fatalf("%d occurrences exceed COUNT=%d", len(unbounded), g.count)
		}

		seen := map[task.Date]int{}
		var prev task.Date
		for i, o := range occs {
			seen[o.Date]++
			if o.Date.Before(from) || o.Date.After(to) {
				t.Fatalf("occurrence %s outside [%s, %s]", o.Date, from, to)
			}
			if o.Date.Before(*g.master.DueDate) {
				t.Fatalf("occurrence %s before anchor %s", o.Date, *g.master.DueDate)
			}
			if g.until != nil && o.Date.After(*g.until) {
				t.Fatalf("occurrence %s after end bound %s", o.Date, *g.until)
			}
			if i > 0 && !prev.Before(o.Date) {
				t.Fatalf("occurrences out of order: %s then %s", prev, o.Date)
			}
			prev = o.Date

			status, has := g.ex[o.Date]
			if has && status.Hidden() {
				t.Fatalf("%s occurrence %s was not filtered", status, o.Date)
			}
			if o.IsCompleted != (has && status == task.StatusCompleted) {
				t.Fatalf("occurrence %s completed=%v with exception %q", o.Date, o.IsCompleted, status)
			}

			if g.master.IsTimed() {
				want, _ := g.master.Duration()
				if o.StartTime == nil || o.EndTime == nil || o.EndTime.Sub(*o.StartTime) != want {
					t.Fatalf("occurrence %s lost its duration", o.Date)
				}
			} else if o.StartTime != nil || o.EndTime != nil {
				t.Fatalf("all-day occurrence %s has times", o.Date)
			}
		}

		for _, o := range unbounded {
			if g.ex[o.Date] == task.StatusCompleted && seen[o.Date] != 1 {
				t.Fatalf("completed occurrence %s appears %d times", o.Date, seen[o.Date])
			}
		}
	})
}

// The next occurrence after an expanded occurrence is the following element of
// the expansion.
func TestPropertyNextMatchesExpand(t *testing.T) {
	engine := NewEngine()

	rapid.Check(t, func(t *rapid.T) {
		g := genMaster(t)
		anchor := *g.master.DueDate
		occs, err := engine.Expand(g.master, anchor, anchor.AddDays(400), nil)
		if err != nil {
			t.Fatalf("expand: %v", err)
		}
		if len(occs) < 2 {
			return
		}
		i := rapid.IntRange(0, len(occs)-2).Draw(t, "index")
		at, _ := occs[i].Anchor()

		next, err := engine.NextOccurrence(g.master, at)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got, ok := next.Get(); !ok || got != occs[i+1].Date {
			t.Fatalf("next after %s = %v, want %s", occs[i].Date, next, occs[i+1].Date)
		}
	})
}
