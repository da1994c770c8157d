package strata

import (
	"context"
	"fmt"
	"sync"
)

// ChangeOp is the kind of mutation an entity underwent in the system of
// record.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"

	// OpAny matches every operation in a trigger.
	OpAny ChangeOp = "*"
)

// ChangeEvent describes a system-of-record mutation. RefEntity/RefID name
// the owning record for child entities (a message's conversation, an
// invoice's customer) so their derived keys are invalidated too.
type ChangeEvent struct {
	Entity    string
	Op        ChangeOp
	ID        string
	RefEntity string
	RefID     string
}

// patterns derives the wildcard invalidations for an event: the entity's
// detail keys, its collection keys and the owning record's scoped keys.
func (ev ChangeEvent) patterns() []Pattern {
	var ps []Pattern
	if ev.ID != "" {
		ps = append(ps,
			Glob(ev.Entity+":"+ev.ID),
			Glob(ev.Entity+":"+ev.ID+":*"),
		)
	}
	ps = append(ps, Glob(ev.Entity+":list:*"))
	if ev.RefEntity != "" && ev.RefID != "" {
		ps = append(ps, Glob(ev.RefEntity+":"+ev.RefID+":"+ev.Entity+":*"))
	}
	return ps
}

// ChangeTrigger names a mutation that fires a rule: an entity plus one of
// its operations, or OpAny for all of them.
type ChangeTrigger struct {
	Entity string
	Op     ChangeOp
}

// DependencyRule declares what invalidating Tag drags along. Triggers are
// the mutations that make HandleDataChange invalidate the tag. Dependents
// are invalidated alongside when Cascading is set.
type DependencyRule struct {
	Tag        string
	Triggers   []ChangeTrigger
	Dependents []string
	Cascading  bool
}

type ManagerConfig struct {
	Cache  Cache // required
	Rules  []DependencyRule
	Warmup WarmupOptions
	Logger Logger
	Hooks  Hooks
}

// Manager layers tag bookkeeping, dependency-driven invalidation and
// warmup over a Cache. The tag index is in-process only; replicas each
// track the keys they tagged themselves.
type Manager struct {
	cache    Cache
	rules    map[string]DependencyRule
	triggers map[ChangeTrigger][]string
	warmup   WarmupOptions

	mu   sync.RWMutex
	tags map[string]map[string]struct{}

	log   Logger
	hooks Hooks
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("strata: cache is required")
	}

	rules := make(map[string]DependencyRule, len(cfg.Rules))
	triggers := make(map[ChangeTrigger][]string)
	for _, r := range cfg.Rules {
		if r.Tag == "" {
			return nil, fmt.Errorf("strata: dependency rule without a tag")
		}
		if _, dup := rules[r.Tag]; dup {
			return nil, fmt.Errorf("strata: duplicate dependency rule for tag %q", r.Tag)
		}
		rules[r.Tag] = r
		for _, t := range r.Triggers {
			if t.Entity == "" || t.Op == "" {
				return nil, fmt.Errorf("strata: rule %q has an incomplete trigger", r.Tag)
			}
			triggers[t] = append(triggers[t], r.Tag)
		}
	}
	if err := detectCycle(rules); err != nil {
		return nil, err
	}

	return &Manager{
		cache:    cfg.Cache,
		rules:    rules,
		triggers: triggers,
		warmup:   cfg.Warmup,
		tags:     make(map[string]map[string]struct{}),
		log:      coalesce[Logger](cfg.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](cfg.Hooks, NopHooks{}),
	}, nil
}

// SetWithTags stores the value and records the key under each tag. The key
// is tagged even when the write partially failed; invalidating an absent
// key is harmless.
func (m *Manager) SetWithTags(ctx context.Context, key string, value any, tags []string, opts ...Option) bool {
	ok := m.cache.Set(ctx, key, value, opts...)
	m.tagKey(key, tags)
	return ok
}

// InvalidateTag removes every key recorded under the tag from both tiers,
// empties the tag, and walks cascading dependents. Returns the number of
// keys removed across the cascade.
func (m *Manager) InvalidateTag(ctx context.Context, tag string) int {
	return m.invalidateTag(ctx, tag, make(map[string]struct{}))
}

func (m *Manager) invalidateTag(ctx context.Context, tag string, visited map[string]struct{}) int {
	if _, done := visited[tag]; done {
		return 0
	}
	visited[tag] = struct{}{}

	m.mu.Lock()
	set := m.tags[tag]
	var ks []string
	if len(set) > 0 {
		ks = make([]string, 0, len(set))
		for k := range set {
			ks = append(ks, k)
		}
		// the tag survives empty and can be repopulated
		m.tags[tag] = make(map[string]struct{})
	}
	m.mu.Unlock()

	n := 0
	for _, k := range ks {
		if m.cache.Del(ctx, k) {
			n++
		}
	}
	if n > 0 {
		m.log.Debug("tag invalidated", Fields{"tag": tag, "removed": n})
	}

	if r, ok := m.rules[tag]; ok && r.Cascading {
		for _, dep := range r.Dependents {
			n += m.invalidateTag(ctx, dep, visited)
		}
	}
	return n
}

// HandleDataChange reacts to a system-of-record mutation: tags whose
// triggers match the event's entity and op (or OpAny) are invalidated,
// then the event's derived wildcard patterns. Returns the number of keys
// removed.
func (m *Manager) HandleDataChange(ctx context.Context, ev ChangeEvent) int {
	n := 0
	visited := make(map[string]struct{})
	for _, t := range m.triggers[ChangeTrigger{Entity: ev.Entity, Op: ev.Op}] {
		n += m.invalidateTag(ctx, t, visited)
	}
	for _, t := range m.triggers[ChangeTrigger{Entity: ev.Entity, Op: OpAny}] {
		n += m.invalidateTag(ctx, t, visited)
	}
	for _, p := range ev.patterns() {
		n += m.cache.Invalidate(ctx, p)
	}
	m.log.Debug("data change handled", Fields{
		"entity":  ev.Entity,
		"op":      string(ev.Op),
		"removed": n,
	})
	return n
}

// TaggedKeys returns a copy of the keys currently recorded under the tag.
func (m *Manager) TaggedKeys(tag string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.tags[tag]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (m *Manager) Stats() Stats { return m.cache.Stats() }

func (m *Manager) Health(ctx context.Context) Health { return m.cache.Health(ctx) }

func (m *Manager) tagKey(key string, tags []string) {
	if len(tags) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tags {
		set := m.tags[t]
		if set == nil {
			set = make(map[string]struct{})
			m.tags[t] = set
		}
		set[key] = struct{}{}
	}
}

// detectCycle rejects rule tables whose cascading edges loop; the runtime
// visited set would terminate anyway, but a cycle is always a config bug.
func detectCycle(rules map[string]DependencyRule) error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(rules))
	var visit func(tag string) error
	visit = func(tag string) error {
		switch color[tag] {
		case grey:
			return fmt.Errorf("strata: dependency cycle through tag %q", tag)
		case black:
			return nil
		}
		color[tag] = grey
		if r, ok := rules[tag]; ok && r.Cascading {
			for _, dep := range r.Dependents {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[tag] = black
		return nil
	}
	for tag := range rules {
		if err := visit(tag); err != nil {
			return err
		}
	}
	return nil
}
