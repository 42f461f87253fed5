package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("generated IDs should be unique")
	}
	if id1.Compare(id2) >= 0 {
		t.Error("monotonic IDs should sort in generation order")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{RequestPrefix, ExecutionPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		if !strings.HasPrefix(id, prefix+"_") {
			t.Errorf("ID should start with %q, got %s", prefix+"_", id)
		}
		parts := strings.Split(id, "_")
		if len(parts) != 2 || !IsValid(parts[1]) {
			t.Errorf("ID should have format prefix_ulid, got %s", id)
		}
	}
}

func TestParseRequestID(t *testing.T) {
	good := NewRequestID()
	if _, ok := ParseRequestID(good.String()); !ok {
		t.Errorf("expected %s to parse", good)
	}
	bare := Default().Generate().String()
	if _, ok := ParseRequestID(bare); !ok {
		t.Errorf("expected bare ULID %s to parse", bare)
	}
	for _, bad := range []string{"", "req_", "hello", "req_not-a-ulid"} {
		if _, ok := ParseRequestID(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewExecutionID().String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("timestamp %v out of range", ts)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[RequestID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewRequestID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique IDs, got %d", workers*perWorker, len(seen))
	}
}
