package watch

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// recorder collects flushes.
type recorder struct {
	mu      sync.Mutex
	flushes [][]string
}

func (r *recorder) flush(paths []string) {
	r.mu.Lock()
	r.flushes = append(r.flushes, paths)
	r.mu.Unlock()
}

func (r *recorder) get() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.flushes)
}

func TestDebouncer_SingleEvent(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.flush)
	defer d.Stop()

	d.Add("core.py")
	time.Sleep(120 * time.Millisecond)

	got := rec.get()
	if len(got) != 1 || !slices.Equal(got[0], []string{"core.py"}) {
		t.Errorf("expected [[core.py]], got %v", got)
	}
}

func TestDebouncer_CoalescesAndSorts(t *testing.T) {
	var rec recorder
	d := NewDebouncer(100*time.Millisecond, rec.flush)
	defer d.Stop()

	d.Add("src/z.py")
	time.Sleep(20 * time.Millisecond)
	d.Add("lib/a.py")
	time.Sleep(20 * time.Millisecond)
	d.Add("src/z.py")
	d.Add("b.py")

	time.Sleep(200 * time.Millisecond)

	got := rec.get()
	if len(got) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(got))
	}
	if want := []string{"b.py", "lib/a.py", "src/z.py"}; !slices.Equal(got[0], want) {
		t.Errorf("expected %v, got %v", want, got[0])
	}
}

func TestDebouncer_ResetOnNewEvent(t *testing.T) {
	var rec recorder
	d := NewDebouncer(60*time.Millisecond, rec.flush)
	defer d.Stop()

	for _, p := range []string{"a.py", "b.py", "c.py"} {
		d.Add(p)
		time.Sleep(30 * time.Millisecond)
	}
	if n := len(rec.get()); n != 0 {
		t.Errorf("flushed %d times inside the window", n)
	}

	time.Sleep(150 * time.Millisecond)
	if n := len(rec.get()); n != 1 {
		t.Errorf("expected 1 flush, got %d", n)
	}
}

func TestDebouncer_FlushNow(t *testing.T) {
	var rec recorder
	d := NewDebouncer(time.Second, rec.flush)

	d.Add("a.py")
	d.Add("b.py")
	d.FlushNow()

	got := rec.get()
	if len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("expected one flush of 2 paths, got %v", got)
	}

	d.FlushNow() // nothing pending
	if n := len(rec.get()); n != 1 {
		t.Errorf("empty FlushNow should not call the handler")
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.flush)

	d.Add("a.py")
	d.Stop()
	d.Add("b.py")
	time.Sleep(100 * time.Millisecond)

	got := rec.get()
	if len(got) != 1 || !slices.Equal(got[0], []string{"a.py"}) {
		t.Errorf("expected [[a.py]], got %v", got)
	}
}

func TestDebouncer_PendingCount(t *testing.T) {
	d := NewDebouncer(time.Second, func([]string) {})
	defer d.Stop()

	if count := d.PendingCount(); count != 0 {
		t.Errorf("expected 0 pending, got %d", count)
	}
	d.Add("a.py")
	d.Add("b.py")
	d.Add("a.py")
	if count := d.PendingCount(); count != 2 {
		t.Errorf("expected 2 pending, got %d", count)
	}
}

func TestDebouncer_MaxPendingLimit(t *testing.T) {
	var rec recorder
	d := NewDebouncer(time.Second, rec.flush)
	defer d.Stop()

	for i := 0; i < MaxPending+10; i++ {
		d.Add(fmt.Sprintf("f%04d.py", i))
	}

	got := rec.get()
	if len(got) != 1 || len(got[0]) != MaxPending {
		t.Fatalf("expected one immediate flush of %d, got %d flushes", MaxPending, len(got))
	}
	if d.PendingCount() != 10 {
		t.Errorf("expected 10 pending after the forced flush, got %d", d.PendingCount())
	}
}
