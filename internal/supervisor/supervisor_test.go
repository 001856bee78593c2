package supervisor

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mdry44280-bot/code-runner-dashboard/internal/logsink"
	"github.com/mdry44280-bot/code-runner-dashboard/internal/store"
)

func newSupervisor(t *testing.T) (*Supervisor, *store.Store, *logsink.Sink) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	logs, err := logsink.New(t.TempDir())
	if err != nil {
		t.Fatalf("logsink.New: %v", err)
	}
	sup := New(Config{
		RestartPause:       50 * time.Millisecond,
		StopConfirmTimeout: 2 * time.Second,
		ProbeInterval:      100 * time.Millisecond,
	}, st, logs)
	t.Cleanup(sup.StopAll)
	return sup, st, logs
}

func saveScript(t *testing.T, st *store.Store, name, body string) {
	t.Helper()
	if _, err := st.Save(name, []byte(body)); err != nil {
		t.Fatalf("Save %s: %v", name, err)
	}
}

func TestStartMissingArtifact(t *testing.T) {
	sup, _, _ := newSupervisor(t)
	_, err := sup.Start("missing.py")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if sup.Count() != 0 {
		t.Fatalf("table should stay empty, count=%d", sup.Count())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "long.sh", "sleep 30\n")

	inst, err := sup.Start("long.sh")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.PID <= 0 {
		t.Fatalf("expected positive pid, got %d", inst.PID)
	}
	if !sup.Running("long.sh") {
		t.Fatal("expected instance to be tracked")
	}

	st2 := sup.Status(context.Background(), "long.sh")
	if st2.State != StateRunning {
		t.Fatalf("status = %q, want running (msg: %s)", st2.State, st2.Message)
	}
	if st2.PID != inst.PID {
		t.Fatalf("status pid = %d, want %d", st2.PID, inst.PID)
	}

	if err := sup.Stop("long.sh"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sup.Running("long.sh") {
		t.Fatal("instance should be removed after stop")
	}
	if got := sup.Status(context.Background(), "long.sh"); got.State != StateStopped {
		t.Fatalf("status after stop = %q, want stopped", got.State)
	}
	// Process group must actually be gone.
	waitFor(t, 3*time.Second, func() bool {
		return syscall.Kill(inst.PID, 0) != nil
	})
}

func TestStartIdempotent(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "long.sh", "sleep 30\n")

	first, err := sup.Start("long.sh")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := sup.Start("long.sh")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if first.PID != second.PID || !first.StartedAt.Equal(second.StartedAt) {
		t.Fatalf("expected identical descriptors: %+v vs %+v", first, second)
	}
	if sup.Count() != 1 {
		t.Fatalf("count = %d, want 1", sup.Count())
	}
}

func TestStopNotRunning(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "a.sh", "sleep 30\n")
	err := sup.Stop("a.sh")
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if sup.Count() != 0 {
		t.Fatal("table must not change on failed stop")
	}
}

func TestSpawnFailureClosesAndReports(t *testing.T) {
	sup, st, logs := newSupervisor(t)
	sup.cfg.Interpreters[".sh"] = "/nonexistent/interpreter"
	saveScript(t, st, "a.sh", "sleep 1\n")

	_, err := sup.Start("a.sh")
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if sup.Count() != 0 {
		t.Fatal("failed spawn must not leave a table entry")
	}
	// Log file was created before the spawn attempt; must still be usable.
	if _, err := os.Stat(logs.Path("a.sh")); err != nil {
		t.Fatalf("log file: %v", err)
	}
}

func TestLogsOutliveStop(t *testing.T) {
	sup, st, logs := newSupervisor(t)
	saveScript(t, st, "echo.sh", "echo hello from script\nsleep 30\n")

	if _, err := sup.Start("echo.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		tail, err := logs.Tail(context.Background(), "echo.sh", 10)
		return err == nil && strings.Contains(tail.Text, "hello from script")
	})

	if err := sup.Stop("echo.sh"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	tail, err := logs.Tail(context.Background(), "echo.sh", 10)
	if err != nil {
		t.Fatalf("Tail after stop: %v", err)
	}
	if !strings.Contains(tail.Text, "hello from script") {
		t.Fatalf("logs should survive stop, got %q", tail.Text)
	}
}

func TestProcessGroupKillReachesChildren(t *testing.T) {
	sup, st, logs := newSupervisor(t)
	// The script forks a child that writes its PID, then both sleep.
	saveScript(t, st, "forker.sh", "sleep 30 &\necho child:$! >> \""+logs.Path("forker.sh")+"\"\nwait\n")

	if _, err := sup.Start("forker.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var childPID int
	waitFor(t, 3*time.Second, func() bool {
		tail, err := logs.Tail(context.Background(), "forker.sh", 10)
		if err != nil || !strings.Contains(tail.Text, "child:") {
			return false
		}
		for _, line := range strings.Split(tail.Text, "\n") {
			if rest, ok := strings.CutPrefix(line, "child:"); ok {
				var n int
				for _, r := range strings.TrimSpace(rest) {
					n = n*10 + int(r-'0')
				}
				childPID = n
				return childPID > 0
			}
		}
		return false
	})

	if err := sup.Stop("forker.sh"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return syscall.Kill(childPID, 0) != nil
	})
}

func TestExternalDeathReapsEntry(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "quick.sh", "exit 0\n")

	if _, err := sup.Start("quick.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The monitor goroutine removes the entry once the child exits.
	waitFor(t, 3*time.Second, func() bool { return !sup.Running("quick.sh") })
	if got := sup.Status(context.Background(), "quick.sh"); got.State != StateStopped {
		t.Fatalf("status = %q, want stopped", got.State)
	}
}

func TestConcurrentStartSingleInstance(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "long.sh", "sleep 30\n")

	const callers = 10
	pids := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := sup.Start("long.sh")
			if err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			pids[i] = inst.PID
		}(i)
	}
	wg.Wait()

	if sup.Count() != 1 {
		t.Fatalf("count = %d, want exactly 1", sup.Count())
	}
	for i := 1; i < callers; i++ {
		if pids[i] != pids[0] {
			t.Fatalf("divergent pids: %v", pids)
		}
	}
}

func TestRestartAllCollectsResults(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "one.sh", "sleep 30\n")
	saveScript(t, st, "two.sh", "sleep 30\n")

	first, err := sup.Start("one.sh")
	if err != nil {
		t.Fatalf("Start one: %v", err)
	}
	if _, err := sup.Start("two.sh"); err != nil {
		t.Fatalf("Start two: %v", err)
	}

	res := sup.RestartAll(context.Background())
	if len(res.Failed) != 0 {
		t.Fatalf("unexpected failures: %+v", res.Failed)
	}
	if len(res.Restarted) != 2 || res.Restarted[0] != "one.sh" || res.Restarted[1] != "two.sh" {
		t.Fatalf("restarted = %v", res.Restarted)
	}
	if sup.Count() != 2 {
		t.Fatalf("count after restart = %d, want 2", sup.Count())
	}
	second, err := sup.Start("one.sh")
	if err != nil {
		t.Fatalf("Start after restart: %v", err)
	}
	if second.PID == first.PID {
		t.Fatalf("expected a fresh pid after restart, still %d", second.PID)
	}
}

func TestInstancesSnapshotSorted(t *testing.T) {
	sup, st, _ := newSupervisor(t)
	saveScript(t, st, "b.sh", "sleep 30\n")
	saveScript(t, st, "a.sh", "sleep 30\n")
	if _, err := sup.Start("b.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := sup.Start("a.sh"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	insts := sup.Instances()
	if len(insts) != 2 || insts[0].ScriptName != "a.sh" || insts[1].ScriptName != "b.sh" {
		t.Fatalf("instances = %+v", insts)
	}
	pids := sup.PIDs()
	if len(pids) != 2 || pids["a.sh"] <= 0 || pids["b.sh"] <= 0 {
		t.Fatalf("pids = %v", pids)
	}
}

func TestInterpreterSelection(t *testing.T) {
	sup, _, _ := newSupervisor(t)
	if got := sup.interpreterFor("bot.py"); got != "python3" {
		t.Fatalf("py interpreter = %q", got)
	}
	if got := sup.interpreterFor("job.sh"); got != "sh" {
		t.Fatalf("sh interpreter = %q", got)
	}
	if got := sup.interpreterFor("unknown.xyz"); got != "python3" {
		t.Fatalf("default interpreter = %q", got)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
