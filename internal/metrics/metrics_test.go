package metrics

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestProbeSelf(t *testing.T) {
	s, err := Probe(context.Background(), int32(os.Getpid()), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if s.PID != int32(os.Getpid()) {
		t.Fatalf("pid = %d", s.PID)
	}
	if s.MemoryMB <= 0 {
		t.Fatalf("memory = %f, want > 0", s.MemoryMB)
	}
	if s.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestProbeDeadPID(t *testing.T) {
	// PIDs this large are rejected or unused on any reasonable system.
	if _, err := Probe(context.Background(), 1<<22+12345, 10*time.Millisecond); err == nil {
		t.Fatal("expected error probing nonexistent pid")
	}
}

func TestCollectorCachesAndCleans(t *testing.T) {
	col := NewCollector(10 * time.Millisecond)
	if err := col.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	self := int32(os.Getpid())
	var mu sync.Mutex
	pids := map[string]int32{"self.py": self}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	col.Start(ctx, func() map[string]int32 {
		mu.Lock()
		defer mu.Unlock()
		return pids
	})
	defer col.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := col.Latest("self.py", self); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	s, ok := col.Latest("self.py", self)
	if !ok {
		t.Fatal("no cached sample for self")
	}
	if s.MemoryMB <= 0 {
		t.Fatalf("memory = %f", s.MemoryMB)
	}

	// A different PID must miss the cache (instance restarted).
	if _, ok := col.Latest("self.py", self+1); ok {
		t.Fatal("cache should be keyed by pid")
	}

	// Once the script leaves the table the cache entry is dropped.
	mu.Lock()
	pids = map[string]int32{}
	mu.Unlock()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := col.Latest("self.py", self); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale cache entry not cleaned up")
}

func TestCollectorRegisterTwice(t *testing.T) {
	col := NewCollector(time.Second)
	reg := prometheus.NewRegistry()
	if err := col.Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := col.Register(reg); err != nil {
		t.Fatalf("second Register should tolerate duplicates: %v", err)
	}
}
