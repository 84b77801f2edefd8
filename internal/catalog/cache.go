package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"merchbot/core/logger"

	"log/slog"
)

// DefaultTTL is the hierarchy snapshot lifetime when none is configured.
const DefaultTTL = time.Hour

// snapshot is an immutable view of the category tree. It is replaced
// wholesale on refresh; readers always see a complete tree.
type snapshot struct {
	tree      Tree
	labels    map[string]Node
	fetchedAt time.Time
}

// Cache keeps the last known category tree and refreshes it lazily.
// A failed refresh degrades to the previous snapshot instead of failing
// the caller (availability over freshness).
type Cache struct {
	store Store
	ttl   time.Duration

	snap      atomic.Pointer[snapshot]
	refreshMu sync.Mutex
}

// NewCache builds a cache over the given store. ttl <= 0 selects DefaultTTL.
func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Tree returns the category tree, refetching when forced or when the
// snapshot is missing or stale. It never returns an error: with no usable
// snapshot an empty tree is served.
func (c *Cache) Tree(ctx context.Context, force bool) Tree {
	if !force {
		if s := c.snap.Load(); s != nil && time.Since(s.fetchedAt) < c.ttl {
			return s.tree
		}
	}

	if err := c.refresh(ctx); err != nil {
		prev := c.snap.Load()
		if prev == nil {
			logger.Warn(ctx, "catalog", "cache.refresh",
				slog.String("status", logger.Status(err)),
				slog.String("cache", "miss"),
				slog.String("err", err.Error()),
			)
			return Tree{}
		}
		logger.Warn(ctx, "catalog", "cache.refresh",
			slog.String("status", logger.Status(err)),
			slog.String("cache", "hit"),
			slog.Duration("age", time.Since(prev.fetchedAt)),
			slog.String("err", err.Error()),
		)
		return prev.tree
	}

	return c.snap.Load().tree
}

// Refresh forces a refetch and reports success. Used by the admin surface.
func (c *Cache) Refresh(ctx context.Context) bool {
	err := c.refresh(ctx)
	if err != nil {
		logger.Error(ctx, "catalog", "cache.refresh",
			slog.String("status", logger.Status(err)),
			slog.String("err", err.Error()),
		)
	}
	return err == nil
}

// ResolveLabel maps a button label to its node in the current snapshot.
// First occurrence in tree order wins.
func (c *Cache) ResolveLabel(label string) (Node, bool) {
	s := c.snap.Load()
	if s == nil {
		return Node{}, false
	}
	n, ok := s.labels[label]
	return n, ok
}

// Size returns the number of nodes in the current snapshot.
func (c *Cache) Size() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	total := 0
	for _, children := range s.tree {
		total += len(children)
	}
	return total
}

// Age returns the time since the current snapshot was fetched, 0 when empty.
func (c *Cache) Age() time.Duration {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	return time.Since(s.fetchedAt)
}

func (c *Cache) refresh(ctx context.Context) error {
	// One refetch at a time; concurrent readers keep the old snapshot.
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	nodes, err := c.store.ListAll(ctx)
	if err != nil {
		return err
	}

	tree := make(Tree, len(nodes)/4+1)
	labels := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		parent := n.ParentID
		if parent == "" {
			parent = RootParentID
		}
		tree[parent] = append(tree[parent], n)
		if _, seen := labels[n.Name]; !seen {
			labels[n.Name] = n
		}
	}

	c.snap.Store(&snapshot{tree: tree, labels: labels, fetchedAt: time.Now()})

	logger.Debug(ctx, "catalog", "cache.refresh",
		slog.String("status", "ok"),
		slog.String("cache", "refresh"),
		slog.Int("nodes", len(nodes)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
