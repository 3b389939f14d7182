package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/publicpulse/pulse/internal/record"
	"github.com/publicpulse/pulse/internal/syncer"
)

type fakeSync struct {
	opts   syncer.ResyncOptions
	pulled string
	closed bool
}

func (f *fakeSync) Resync(_ context.Context, opts syncer.ResyncOptions) (syncer.ResyncStats, error) {
	f.opts = opts
	return syncer.ResyncStats{Created: 3, Skipped: 2}, nil
}

func (f *fakeSync) Pull(_ context.Context, id string) (syncer.Outcome, error) {
	f.pulled = id
	if id == "ghost" {
		return syncer.Outcome{}, fmt.Errorf("%w: %s", syncer.ErrNotFound, id)
	}
	return syncer.Outcome{Record: record.Record{ID: id, Status: record.StatusPending}}, nil
}

// execute runs the root command with args against f.
func execute(t *testing.T, f *fakeSync, args ...string) (string, error) {
	t.Helper()
	prev := openSync
	openSync = func(context.Context) (syncService, func(), error) {
		return f, func() { f.closed = true }, nil
	}
	t.Cleanup(func() {
		openSync = prev
		outputFmt, resyncLimit, resyncForce = "json", 0, false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResyncFlags(t *testing.T) {
	f := &fakeSync{}
	out, err := execute(t, f, "resync", "--limit", "50", "--force")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if f.opts.Limit != 50 || !f.opts.Force || !f.closed {
		t.Fatalf("opts = %+v closed=%v", f.opts, f.closed)
	}
	var stats syncer.ResyncStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil || stats.Created != 3 || stats.Skipped != 2 {
		t.Fatalf("output = %q (%v)", out, err)
	}
}

func TestPullYAML(t *testing.T) {
	f := &fakeSync{}
	out, err := execute(t, f, "pull", "report_1", "-o", "yaml")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if f.pulled != "report_1" || !strings.Contains(out, "report_1") {
		t.Fatalf("pulled %q, output %q", f.pulled, out)
	}
}

func TestPullErrors(t *testing.T) {
	f := &fakeSync{}
	if _, err := execute(t, f, "pull"); err == nil {
		t.Fatalf("pull without id should fail")
	}
	if _, err := execute(t, f, "pull", "ghost"); err == nil {
		t.Fatalf("pull ghost should fail")
	}
}
