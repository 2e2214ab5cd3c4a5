package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/librecur/task"
	"github.com/cyp0633/librecur/workflow"
)

var fixedNow = time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)

// cli runs recurctl invocations against one database file.
type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return &cli{t: t, db: filepath.Join(dir, "data", "tasks.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	a := newApp(func() time.Time { return fixedNow })
	root := a.rootCmd()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--db", c.db}, args...))

	err := root.Execute()
	require.NoError(c.t, a.teardown())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "recurctl %s\n%s", strings.Join(args, " "), out)
	return out
}

func TestCLI_SeriesLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("add", "water plants", "--due", "2026-01-20", "--start", "09:00", "--end", "09:30",
		"--rrule", "FREQ=DAILY;COUNT=10", "--description", "balcony")
	id := strings.TrimSpace(strings.TrimPrefix(out, "Created "))
	require.NotEmpty(t, id)

	out = c.mustRun("show", id, "--on", "2026-01-22")
	assert.Contains(t, out, "Repeats:     Daily, 10 times")
	assert.Contains(t, out, "When:        2026-01-20 09:00-09:30")
	assert.Contains(t, out, "Occurs on 2026-01-22: true")

	out = c.mustRun("complete", id)
	cloneID := workflow.DerivedID(id, workflow.KindClone, task.MustParseDate("2026-01-20"))
	assert.Contains(t, out, "Completed occurrence 2026-01-20 as "+cloneID)
	assert.Contains(t, out, "Next occurrence: 2026-01-21")

	out, err := c.run("complete", id, "2026-01-23")
	assert.ErrorIs(t, err, errNeedsResolution)
	assert.Contains(t, out, "  2026-01-21\n  2026-01-22\n")

	out = c.mustRun("complete", id+"_recur_20260123", "--resolve", "2026-01-21=skipped", "--resolve-all", "completed")
	assert.Contains(t, out, "Completed occurrence 2026-01-23")
	assert.Contains(t, out, "  2026-01-21 skipped\n")
	assert.Contains(t, out, "  2026-01-22 completed\n")
	assert.Contains(t, out, "Next occurrence: 2026-01-24")

	out = c.mustRun("expand", id, "--from", "2026-01-20", "--to", "2026-01-26")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[ ] "+id+"_recur_20260124  2026-01-24 09:00-09:30  water plants", lines[0])

	out = c.mustRun("skip", id, "2026-01-24")
	assert.Contains(t, out, "Next occurrence: 2026-01-25")

	out = c.mustRun("delete-occurrence", id+"_recur_20260127")
	assert.Contains(t, out, "Deleted 2026-01-27")
	assert.Contains(t, out, "Next occurrence: 2026-01-25")

	out = c.mustRun("next", id, "--after", "2026-01-26")
	assert.Equal(t, "Next occurrence: 2026-01-28\n", out)

	out = c.mustRun("uncomplete", cloneID)
	assert.Contains(t, out, "Reopened "+cloneID)

	out = c.mustRun("edit", id, "--mode", "all", "--title", "water the plants")
	assert.Equal(t, "Edited (all): "+id+"\n", out)

	out = c.mustRun("sweep", "--today", "2026-01-28")
	assert.Contains(t, out, id+"  water the plants\n  2026-01-25\n  2026-01-26\n")

	out = c.mustRun("export", id)
	assert.Contains(t, out, "BEGIN:VTODO")
	assert.Contains(t, out, "SUMMARY:water the plants")
	assert.Contains(t, out, "EXDATE")

	out = c.mustRun("list", "--all")
	assert.Contains(t, out, "water the plants")
	assert.Contains(t, out, cloneID)
}

func TestCLI_EditFollowing(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("add", "review", "--due", "2026-01-20", "--rrule", "FREQ=WEEKLY")
	id := strings.TrimSpace(strings.TrimPrefix(out, "Created "))

	out = c.mustRun("edit", id, "--mode", "following", "--on", "2026-02-03", "--date", "2026-02-04")
	newID := workflow.DerivedID(id, workflow.KindSplit, task.MustParseDate("2026-02-03"))
	assert.Equal(t, "Edited (following): "+newID+"\n", out)

	out = c.mustRun("expand", newID, "--from", "2026-02-01", "--to", "2026-02-14")
	assert.Contains(t, out, newID+"_recur_20260204")
	assert.Contains(t, out, newID+"_recur_20260211")

	out = c.mustRun("expand", id, "--from", "2026-01-20", "--to", "2026-02-14")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestCLI_PlainTask(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("add", "file taxes", "--due", "2026-04-15", "--priority", "1")
	id := strings.TrimSpace(strings.TrimPrefix(out, "Created "))

	out = c.mustRun("complete", id)
	assert.Equal(t, "Completed\n", out)

	out = c.mustRun("list")
	assert.Equal(t, "No tasks\n", out)

	out = c.mustRun("export", "--format", "xcal")
	assert.Contains(t, out, "<vtodo>")
	assert.Contains(t, out, "file taxes")

	path := filepath.Join(t.TempDir(), "out.ics")
	c.mustRun("export", "-o", path)
	assert.FileExists(t, path)
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "start without due", args: []string{"add", "x", "--start", "09:00"}, wantErr: "--start needs --due"},
		{name: "rrule without due", args: []string{"add", "x", "--rrule", "FREQ=DAILY"}, wantErr: "--rrule needs --due"},
		{name: "bad rule", args: []string{"add", "x", "--due", "2026-01-20", "--rrule", "FREQ=SOMETIMES"}, wantErr: "malformed recurrence rule"},
		{name: "end before start", args: []string{"add", "x", "--due", "2026-01-20", "--start", "10:00", "--end", "09:00"}, wantErr: "before"},
		{name: "unknown task", args: []string{"show", "missing"}, wantErr: "not_found"},
		{name: "bad resolution", args: []string{"complete", "missing", "--resolve", "2026-01-01=later"}, wantErr: "--resolve"},
		{name: "bad mode", args: []string{"edit", "missing", "--mode", "some"}, wantErr: "unknown edit mode"},
		{name: "single without date", args: []string{"edit", "missing", "--mode", "single"}, wantErr: "needs --on"},
		{name: "skip without date", args: []string{"skip", "missing"}, wantErr: "needs an occurrence date"},
		{name: "bad export format", args: []string{"export", "--format", "csv"}, wantErr: "--format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCLI_Config(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("--memory", "config")
	assert.Contains(t, out, "driver: memory")
	assert.Contains(t, out, "preset: default")

	t.Setenv("RECUR_LOG_LEVEL", "loud")
	_, err := c.run("list")
	assert.ErrorContains(t, err, "log.level")
}

func TestCLI_MemoryStore(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("--memory", "add", "ephemeral")
	assert.True(t, strings.HasPrefix(out, "Created "))

	out = c.mustRun("--memory", "list")
	assert.Equal(t, "No tasks\n", out, "each invocation starts empty")
	assert.NoFileExists(t, c.db)
}

func TestOccurrenceArgs(t *testing.T) {
	id, d, err := occurrenceArgs([]string{"abc_recur_20260120"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, task.MustParseDate("2026-01-20"), d.MustGet())

	id, d, err = occurrenceArgs([]string{"abc", "2026-01-21"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, task.MustParseDate("2026-01-21"), d.MustGet())

	id, d, err = occurrenceArgs([]string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.True(t, d.IsAbsent())

	_, _, err = occurrenceArgs([]string{"abc", "tomorrow"})
	assert.Error(t, err)
}

func TestParseResolutions(t *testing.T) {
	got, err := parseResolutions([]string{"2026-01-10=completed", "2026-01-11= Skipped"})
	require.NoError(t, err)
	assert.Equal(t, map[task.Date]workflow.Resolution{
		task.MustParseDate("2026-01-10"): workflow.ResolveCompleted,
		task.MustParseDate("2026-01-11"): workflow.ResolveSkipped,
	}, got)

	_, err = parseResolutions([]string{"2026-01-10"})
	assert.Error(t, err)
	_, err = parseResolutions([]string{"soon=completed"})
	assert.Error(t, err)
}
