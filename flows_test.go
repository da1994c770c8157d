package strata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)

	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		return user{ID: "9", Name: "Lin"}, nil
	}

	var got user
	if err := cc.GetOrSet(ctx, "u:9", &got, fetch); err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if got.Name != "Lin" {
		t.Fatalf("got %+v", got)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
	if !fs.has("test:u:9") || !cc.mem.Exists("u:9") {
		t.Fatal("fetched value was not cached in both tiers")
	}

	var again user
	if err := cc.GetOrSet(ctx, "u:9", &again, fetch); err != nil {
		t.Fatalf("GetOrSet on hit: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch ran again on a hit, calls = %d", calls)
	}
	if again != got {
		t.Fatalf("hit returned %+v, want %+v", again, got)
	}
}

func TestGetOrSetFetchError(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)

	errDB := errors.New("db down")
	var got user
	err := cc.GetOrSet(ctx, "u:1", &got, func(ctx context.Context) (any, error) {
		return nil, errDB
	})
	if !errors.Is(err, errDB) {
		t.Fatalf("err = %v, want wrapped db error", err)
	}
	if cc.mem.Exists("u:1") || fs.has("test:u:1") {
		t.Fatal("failed fetch must not cache anything")
	}
}

func TestGetOrSetSkipMemoryReadsRemote(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)

	// stale local copy, fresh remote copy
	cc.Set(ctx, "cfg", "stale", SkipRemote())
	cc.Set(ctx, "cfg", "fresh", SkipMemory())

	calls := 0
	var got string
	err := cc.GetOrSet(ctx, "cfg", &got, func(ctx context.Context) (any, error) {
		calls++
		return "fetched", nil
	}, SkipMemory())
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if got != "fresh" {
		t.Fatalf("got %q, want the remote copy", got)
	}
	if calls != 0 {
		t.Fatalf("fetch calls = %d; a remote hit must not invoke the fetcher", calls)
	}
}

func TestSetThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("writer success caches", func(t *testing.T) {
		cc, fs := newTestCache(t, nil)
		wrote := false
		err := cc.SetThrough(ctx, "k", "v", func(ctx context.Context) error {
			wrote = true
			return nil
		})
		if err != nil {
			t.Fatalf("SetThrough: %v", err)
		}
		if !wrote {
			t.Fatal("writer never ran")
		}
		var got string
		if !cc.Get(ctx, "k", &got) || got != "v" {
			t.Fatalf("cached value = %q", got)
		}
		if !fs.has("test:k") {
			t.Fatal("remote tier missing the entry")
		}
	})

	t.Run("writer failure leaves cache untouched", func(t *testing.T) {
		cc, fs := newTestCache(t, nil)
		errWrite := errors.New("constraint violation")
		err := cc.SetThrough(ctx, "k", "v", func(ctx context.Context) error {
			return errWrite
		})
		if !errors.Is(err, errWrite) {
			t.Fatalf("err = %v, want wrapped writer error", err)
		}
		if cc.mem.Exists("k") || fs.has("test:k") {
			t.Fatal("cache must stay untouched when the writer fails")
		}
	})
}

func TestSetBehind(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)

	wrote := make(chan struct{})
	err := cc.SetBehind(ctx, "k", "v", func(ctx context.Context) error {
		close(wrote)
		return nil
	})
	if err != nil {
		t.Fatalf("SetBehind: %v", err)
	}

	var got string
	if !cc.Get(ctx, "k", &got) || got != "v" {
		t.Fatal("SetBehind must serve reads immediately")
	}

	select {
	case <-wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("background write never ran")
	}
}

func TestSetBehindFailureEvicts(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	cc, fs := newTestCache(t, func(o *Options) { o.Hooks = hooks })

	err := cc.SetBehind(ctx, "k", "v", func(ctx context.Context) error {
		return errors.New("sor rejected")
	})
	if err != nil {
		t.Fatalf("SetBehind: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && cc.Exists(ctx, "k") {
		time.Sleep(5 * time.Millisecond)
	}
	if cc.Exists(ctx, "k") || fs.has("test:k") {
		t.Fatal("entry must be evicted after the background write fails")
	}
	if fails := hooks.wbFailed(); len(fails) != 1 || fails[0] != "k" {
		t.Fatalf("failure hook = %v", fails)
	}
}

func TestSetBehindOverflowSpawns(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	cc, _ := newTestCache(t, func(o *Options) {
		o.Hooks = hooks
		o.WriteBehind = WriteBehindOptions{Workers: 1, QueueSize: 1}
	})

	started := make(chan struct{})
	gate := make(chan struct{})
	var ran atomic.Int32

	blocker := func(ctx context.Context) error {
		close(started)
		<-gate
		ran.Add(1)
		return nil
	}
	quick := func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}

	if err := cc.SetBehind(ctx, "k1", "v", blocker); err != nil {
		t.Fatalf("SetBehind k1: %v", err)
	}
	<-started // worker is now busy

	if err := cc.SetBehind(ctx, "k2", "v", quick); err != nil { // fills the queue
		t.Fatalf("SetBehind k2: %v", err)
	}
	if err := cc.SetBehind(ctx, "k3", "v", quick); err != nil { // overflows
		t.Fatalf("SetBehind k3: %v", err)
	}

	if over := hooks.wbOverflowed(); len(over) != 1 || over[0] != "k3" {
		t.Fatalf("overflow hook = %v, want [k3]", over)
	}

	close(gate)
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := ran.Load(); n != 3 {
		t.Fatalf("writes ran = %d, want 3; the overflow write must not be dropped", n)
	}
}

func TestCloseDrainsWriteBehind(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)

	var done atomic.Bool
	err := cc.SetBehind(ctx, "k", "v", func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("SetBehind: %v", err)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !done.Load() {
		t.Fatal("Close returned before the queued write finished")
	}
}

// gateHooks blocks the overflow callback until release closes.
type gateHooks struct {
	NopHooks

	entered chan struct{} // closed when the callback starts
	release chan struct{}
}

func (h *gateHooks) WriteBehindOverflow(string) {
	close(h.entered)
	<-h.release
}

func TestCloseWaitsForOverflowWrite(t *testing.T) {
	ctx := context.Background()
	hooks := &gateHooks{entered: make(chan struct{}), release: make(chan struct{})}
	cc, _ := newTestCache(t, func(o *Options) {
		o.Hooks = hooks
		o.WriteBehind = WriteBehindOptions{Workers: 1, QueueSize: 1}
	})

	started := make(chan struct{})
	workerGate := make(chan struct{})
	var ran atomic.Int32

	if err := cc.SetBehind(ctx, "k1", "v", func(ctx context.Context) error {
		close(started)
		<-workerGate
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("SetBehind k1: %v", err)
	}
	<-started // worker is now busy

	quick := func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}
	if err := cc.SetBehind(ctx, "k2", "v", quick); err != nil { // fills the queue
		t.Fatalf("SetBehind k2: %v", err)
	}

	// k3 overflows; the gated callback holds it accepted but not yet running
	setDone := make(chan struct{})
	go func() {
		defer close(setDone)
		if err := cc.SetBehind(ctx, "k3", "v", quick); err != nil {
			t.Errorf("SetBehind k3: %v", err)
		}
	}()
	<-hooks.entered
	close(workerGate) // drain the queued writes; only k3 remains pending

	closeDone := make(chan struct{})
	go func() {
		defer close(closeDone)
		if err := cc.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned with an accepted write still pending")
	case <-time.After(150 * time.Millisecond):
	}

	close(hooks.release)
	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never finished")
	}
	<-setDone
	if n := ran.Load(); n != 3 {
		t.Fatalf("writes ran = %d, want 3", n)
	}
}

func TestSetBehindRefusedWhenDraining(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)

	// drain the pool out from under the flow, as a concurrent Close would
	cc.wb.close()

	ran := false
	err := cc.SetBehind(ctx, "k", "v", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err == nil {
		t.Fatal("a drained pool must refuse the write")
	}
	if ran {
		t.Fatal("refused write must not run")
	}
	if cc.mem.Exists("k") || fs.has("test:k") {
		t.Fatal("refused write left a cached value behind")
	}
}

func TestSetBehindRacingCloseRunsEveryAcceptedWrite(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, func(o *Options) {
		o.WriteBehind = WriteBehindOptions{Workers: 2, QueueSize: 2}
	})

	var accepted, ran atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				err := cc.SetBehind(ctx, fmt.Sprintf("k:%d:%d", g, i), "v", func(ctx context.Context) error {
					ran.Add(1)
					return nil
				})
				if err != nil {
					return
				}
				accepted.Add(1)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for accepted.Load() < 16 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	if a, r := accepted.Load(), ran.Load(); a != r {
		t.Fatalf("accepted %d writes, ran %d; every accepted write must finish before Close returns", a, r)
	}
}

func TestCachedCombinator(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)

	loads := 0
	loadUser := Cached(cc, time.Minute,
		func(id string) string { return "user:" + id + ":profile" },
		func(ctx context.Context, id string) (user, error) {
			loads++
			return user{ID: id, Name: "U" + id}, nil
		})

	u, err := loadUser(ctx, "7")
	if err != nil {
		t.Fatalf("loadUser: %v", err)
	}
	if u.Name != "U7" {
		t.Fatalf("got %+v", u)
	}

	if _, err := loadUser(ctx, "7"); err != nil {
		t.Fatalf("loadUser cached call: %v", err)
	}
	if loads != 1 {
		t.Fatalf("loads = %d, want 1; second call must be served from cache", loads)
	}

	if _, err := loadUser(ctx, "8"); err != nil {
		t.Fatalf("loadUser other arg: %v", err)
	}
	if loads != 2 {
		t.Fatalf("loads = %d, want 2; distinct args get distinct keys", loads)
	}
}
