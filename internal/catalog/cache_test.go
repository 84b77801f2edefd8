package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	nodes []Node
	err   error
	calls int
}

func (f *fakeStore) ListAll(ctx context.Context) ([]Node, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.nodes, nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*ItemDetail, error) {
	return nil, nil
}

func (f *fakeStore) Search(ctx context.Context, query string, limit int) ([]Node, error) {
	return nil, nil
}

func sampleNodes() []Node {
	return []Node{
		{ID: "1", ParentID: "", Name: "Apparel", SortOrder: 1},
		{ID: "2", ParentID: "", Name: "Stickers", SortOrder: 2},
		{ID: "3", ParentID: "1", Name: "Hoodie", Text: "Warm hoodie", SortOrder: 1},
		{ID: "4", ParentID: "1", Name: "T-Shirt", Text: "Classic tee", SortOrder: 2},
	}
}

func TestTreeSingleFetchWithinTTL(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	first := cache.Tree(ctx, false)
	second := cache.Tree(ctx, false)

	assert.Equal(t, 1, store.calls, "second read must not hit the store")
	require.Len(t, first.Children(RootParentID), 2)
	assert.Equal(t, first.Children("1"), second.Children("1"))
}

func TestTreeGroupsEmptyParentUnderRoot(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)

	tree := cache.Tree(context.Background(), false)

	roots := tree.Children(RootParentID)
	require.Len(t, roots, 2)
	assert.Equal(t, "Apparel", roots[0].Name)
	assert.True(t, tree.HasChildren("1"))
	assert.False(t, tree.HasChildren("3"))
}

func TestTreeServesStaleOnFetchFailure(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	before := cache.Tree(ctx, false)
	require.NotEmpty(t, before)

	store.err = errors.New("catalog unreachable")
	after := cache.Tree(ctx, true)

	assert.Equal(t, before, after, "prior snapshot must be returned unchanged")
	assert.Equal(t, 2, store.calls)
}

func TestTreeEmptyWhenNoSnapshotAndFetchFails(t *testing.T) {
	store := &fakeStore{err: errors.New("down")}
	cache := NewCache(store, time.Hour)

	tree := cache.Tree(context.Background(), false)

	assert.NotNil(t, tree)
	assert.Empty(t, tree)
}

func TestForceRefreshBypassesTTL(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	cache.Tree(ctx, false)
	cache.Tree(ctx, true)

	assert.Equal(t, 2, store.calls)
}

func TestRefreshReportsOutcome(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)
	ctx := context.Background()

	assert.True(t, cache.Refresh(ctx))

	store.err = errors.New("down")
	assert.False(t, cache.Refresh(ctx))
}

func TestResolveLabelFirstMatchWins(t *testing.T) {
	nodes := append(sampleNodes(), Node{ID: "9", ParentID: "2", Name: "Hoodie", SortOrder: 1})
	store := &fakeStore{nodes: nodes}
	cache := NewCache(store, time.Hour)
	cache.Tree(context.Background(), false)

	n, ok := cache.ResolveLabel("Hoodie")
	require.True(t, ok)
	assert.Equal(t, "3", n.ID, "earlier tree-order occurrence wins")

	_, ok = cache.ResolveLabel("Nonexistent")
	assert.False(t, ok)
}

func TestSizeAndAge(t *testing.T) {
	store := &fakeStore{nodes: sampleNodes()}
	cache := NewCache(store, time.Hour)

	assert.Equal(t, 0, cache.Size())
	assert.Equal(t, time.Duration(0), cache.Age())

	cache.Tree(context.Background(), false)
	assert.Equal(t, 4, cache.Size())
	assert.Greater(t, cache.Age(), time.Duration(0))
}
