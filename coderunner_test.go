package coderunner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ScriptsDir = t.TempDir()
	cfg.LogsDir = t.TempDir()
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	t.Cleanup(r.StopAll)
	return r
}

func TestRunnerLifecycle(t *testing.T) {
	r := newRunner(t)

	art, err := r.Save("a.sh", []byte("echo up\nsleep 30\n"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if art.SizeBytes == 0 || !r.Exists("a.sh") {
		t.Fatalf("artifact = %+v", art)
	}

	arts, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(arts) != 1 || arts[0].Name != "a.sh" {
		t.Fatalf("list = %+v", arts)
	}

	inst, err := r.Start("a.sh")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.PID <= 0 {
		t.Fatalf("pid = %d", inst.PID)
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d", r.Count())
	}

	st := r.Status(context.Background(), "a.sh")
	if st.State != "running" || st.PID != inst.PID {
		t.Fatalf("status = %+v", st)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tail, err := r.Tail(context.Background(), "a.sh", 10)
		if err == nil && strings.Contains(tail.Text, "up") {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := r.Stop("a.sh"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st := r.Status(context.Background(), "a.sh"); st.State != "stopped" {
		t.Fatalf("status after stop = %+v", st)
	}
	tail, err := r.Tail(context.Background(), "a.sh", 10)
	if err != nil || !strings.Contains(tail.Text, "up") {
		t.Fatalf("logs after stop: %q err=%v", tail.Text, err)
	}
}

func TestRunnerStartMissing(t *testing.T) {
	r := newRunner(t)
	if _, err := r.Start("missing.py"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestRunnerHistory(t *testing.T) {
	r := newRunner(t)
	sink, err := r.EnableHistory(":memory:")
	if err != nil {
		t.Fatalf("EnableHistory: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if _, err := r.Save("a.sh", []byte("sleep 30\n")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := r.Start("a.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop("a.sh"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	events, err := sink.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var sawStart, sawStop bool
	for _, e := range events {
		switch e.Type {
		case "start":
			sawStart = true
		case "stop":
			sawStop = true
		}
	}
	if !sawStart || !sawStop {
		t.Fatalf("events = %+v", events)
	}
}
