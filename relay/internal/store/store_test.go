package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func rec(id string, started time.Time) Record {
	return Record{ID: id, Transport: "ops", OK: true, StartedAt: started}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndGet(t *testing.T) {
	st := New(5*time.Minute, 10)
	st.Put(rec("d-1", time.Now()))

	r, ok := st.Get("d-1")
	if !ok {
		t.Fatal("Get: expected record, got none")
	}
	if r.Transport != "ops" {
		t.Errorf("Transport: got %q, want ops", r.Transport)
	}
	if _, ok := st.Get("unknown"); ok {
		t.Error("Get unknown: expected false")
	}
}

func TestPut_Overwrites(t *testing.T) {
	st := New(5*time.Minute, 10)
	r := rec("d", time.Now())
	st.Put(r)
	r.OK = false
	r.Reason = "HTTP Status code 500"
	st.Put(r)

	got, _ := st.Get("d")
	if got.OK || got.Reason != "HTTP Status code 500" {
		t.Errorf("overwrite: got %+v", got)
	}
	if st.Count() != 1 {
		t.Errorf("Count: got %d, want 1", st.Count())
	}
}

func TestPut_CapDropsOldest(t *testing.T) {
	st := New(time.Hour, 3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		st.Put(rec(fmt.Sprintf("d-%d", i), base.Add(time.Duration(i)*time.Second)))
	}
	if st.Count() != 3 {
		t.Fatalf("Count: got %d, want 3", st.Count())
	}
	for _, gone := range []string{"d-0", "d-1"} {
		if _, ok := st.Get(gone); ok {
			t.Errorf("%s should have been dropped", gone)
		}
	}
	if _, ok := st.Get("d-4"); !ok {
		t.Error("newest record missing")
	}
}

func TestList_NewestFirstAndExcludesStale(t *testing.T) {
	base := time.Now()
	st := New(5*time.Minute, 10)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put(rec("old", base.Add(-10*time.Minute)))

	st.now = fixedClock(base)
	st.Put(rec("a", base.Add(-2*time.Second)))
	st.Put(rec("b", base.Add(-1*time.Second)))

	list := st.List()
	if len(list) != 2 {
		t.Fatalf("List: got %d records, want 2", len(list))
	}
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("order: got %s,%s want b,a", list[0].ID, list[1].ID)
	}
}

func TestEvict(t *testing.T) {
	base := time.Now()
	st := New(time.Minute, 10)

	st.now = fixedClock(base.Add(-2 * time.Minute))
	st.Put(rec("stale", base))
	st.now = fixedClock(base)
	st.Put(rec("fresh", base))

	if n := st.Evict(base); n != 1 {
		t.Errorf("Evict: removed %d, want 1", n)
	}
	if _, ok := st.Get("stale"); ok {
		t.Error("stale record survived eviction")
	}
	if _, ok := st.Get("fresh"); !ok {
		t.Error("fresh record was evicted")
	}

	// Order bookkeeping stays consistent with the map after eviction.
	for i := 0; i < 10; i++ {
		st.Put(rec(fmt.Sprintf("n-%d", i), base))
	}
	if st.Count() != 10 {
		t.Errorf("Count after refill: got %d, want 10", st.Count())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := New(time.Minute, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New(time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				st.Put(rec(fmt.Sprintf("%d-%d", i, j), time.Now()))
				_ = st.List()
			}
		}(i)
	}
	wg.Wait()
	if st.Count() != 50 {
		t.Errorf("Count: got %d, want 50", st.Count())
	}
}
