package strata

import (
	"bytes"
	"context"
	"regexp"
	"testing"
)

func seedKeys(t *testing.T, cc *cache, ks ...string) {
	t.Helper()
	ctx := context.Background()
	for _, k := range ks {
		if !cc.Set(ctx, k, "v") {
			t.Fatalf("seed %q failed", k)
		}
	}
}

func TestInvalidateExactKey(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)
	seedKeys(t, cc, "user:42:profile", "user:42:prefs")

	if n := cc.Invalidate(ctx, Glob("user:42:profile")); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if cc.Exists(ctx, "user:42:profile") {
		t.Fatal("exact invalidation left the key")
	}
	if fs.has("test:user:42:profile") {
		t.Fatal("exact invalidation left the remote copy")
	}
	if !cc.Exists(ctx, "user:42:prefs") {
		t.Fatal("exact invalidation removed a sibling")
	}

	if n := cc.Invalidate(ctx, Glob("user:42:profile")); n != 0 {
		t.Fatalf("second invalidation removed %d, want 0", n)
	}
}

func TestInvalidateWildcard(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)
	seedKeys(t, cc, "user:42:profile", "user:42:prefs", "user:7:profile")

	if n := cc.Invalidate(ctx, Glob("user:42:*")); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if cc.Exists(ctx, "user:42:profile") || cc.Exists(ctx, "user:42:prefs") {
		t.Fatal("wildcard left a matching key")
	}
	if !cc.Exists(ctx, "user:7:profile") {
		t.Fatal("wildcard removed a non-matching key")
	}
}

// A key resident in both tiers is one logical removal, not two.
func TestInvalidateCountsDistinctKeys(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)
	seedKeys(t, cc, "s:1", "s:2")

	// s:3 lives only remotely, s:2 only in memory
	b, _ := cc.codec.Encode("v")
	fs.seed("test:s:3", b)
	fs.Del(ctx, "test:s:2")

	if n := cc.Invalidate(ctx, Glob("s:*")); n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
}

func TestInvalidateRegex(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	cc, _ := newTestCache(t, func(o *Options) { o.Hooks = hooks })
	seedKeys(t, cc, "sess:1", "sess:22", "sess:abc")

	re := regexp.MustCompile(`^sess:[0-9]+$`)
	if n := cc.Invalidate(ctx, Regex(re)); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if cc.Exists(ctx, "sess:1") || cc.Exists(ctx, "sess:22") {
		t.Fatal("regex left a matching key")
	}
	if !cc.Exists(ctx, "sess:abc") {
		t.Fatal("regex removed a non-matching key")
	}

	tiers := map[string]bool{}
	for _, s := range hooks.scanned() {
		tiers[s.tier] = true
		if s.kind != "regex" {
			t.Fatalf("scan kind = %q, want regex", s.kind)
		}
		if s.scanned < s.matched {
			t.Fatalf("scan event %+v", s)
		}
	}
	if !tiers["memory"] || !tiers["remote"] {
		t.Fatalf("scan hooks fired for %v, want both tiers", tiers)
	}
}

func TestInvalidatePredicate(t *testing.T) {
	ctx := context.Background()
	hooks := &recordHooks{}
	cc, fs := newTestCache(t, func(o *Options) { o.Hooks = hooks })

	cc.Set(ctx, "acct:1", map[string]string{"plan": "free"})
	cc.Set(ctx, "acct:2", map[string]string{"plan": "pro"})
	cc.Set(ctx, "acct:3", map[string]string{"plan": "free"})

	// acct:3 only remote-resident, so its value must travel for the match
	cc.mem.Delete("acct:3")
	mgetsBefore := fs.mgets

	n := cc.Invalidate(ctx, Predicate(func(key string, value []byte) bool {
		return bytes.Contains(value, []byte(`"free"`))
	}))
	if n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if cc.Exists(ctx, "acct:1") || cc.Exists(ctx, "acct:3") {
		t.Fatal("predicate left a matching key")
	}
	if !cc.Exists(ctx, "acct:2") {
		t.Fatal("predicate removed a non-matching key")
	}
	if fs.mgets == mgetsBefore {
		t.Fatal("remote predicate evaluation must fetch candidate values")
	}
	scans := hooks.scanned()
	if len(scans) == 0 {
		t.Fatal("predicate scan hook did not fire")
	}
	for _, s := range scans {
		if s.kind != "predicate" {
			t.Fatalf("scan kind = %q, want predicate", s.kind)
		}
	}
}

func TestInvalidateTierOptions(t *testing.T) {
	ctx := context.Background()
	cc, fs := newTestCache(t, nil)
	seedKeys(t, cc, "k:1", "k:2")

	if n := cc.Invalidate(ctx, Glob("k:*"), SkipRemote()); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if cc.mem.Exists("k:1") || cc.mem.Exists("k:2") {
		t.Fatal("memory entries survived SkipRemote invalidation")
	}
	if !fs.has("test:k:1") || !fs.has("test:k:2") {
		t.Fatal("remote entries should be untouched with SkipRemote")
	}

	if n := cc.Invalidate(ctx, Glob("k:*"), SkipMemory()); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if fs.has("test:k:1") || fs.has("test:k:2") {
		t.Fatal("remote entries survived SkipMemory invalidation")
	}
}

func TestInvalidateEdgeCases(t *testing.T) {
	ctx := context.Background()
	cc, _ := newTestCache(t, nil)
	seedKeys(t, cc, "k:1")

	t.Run("zero pattern matches nothing", func(t *testing.T) {
		if n := cc.Invalidate(ctx, Pattern{}); n != 0 {
			t.Fatalf("removed %d", n)
		}
	})

	t.Run("invalid glob removes nothing", func(t *testing.T) {
		if n := cc.Invalidate(ctx, Glob("k:[")); n != 0 {
			t.Fatalf("removed %d", n)
		}
		if !cc.Exists(ctx, "k:1") {
			t.Fatal("invalid glob should leave the keyspace alone")
		}
	})

	t.Run("flush by star", func(t *testing.T) {
		if n := cc.Invalidate(ctx, Glob("*")); n != 1 {
			t.Fatalf("removed %d, want 1", n)
		}
		if cc.Exists(ctx, "k:1") {
			t.Fatal("star glob should empty the namespace")
		}
	})
}
