package nav

import (
	"fmt"
	"testing"

	"merchbot/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type labelMap map[string]catalog.Node

func (m labelMap) ResolveLabel(label string) (catalog.Node, bool) {
	n, ok := m[label]
	return n, ok
}

func testTree() catalog.Tree {
	return catalog.Tree{
		catalog.RootParentID: {
			{ID: "42", Name: "Apparel"},
			{ID: "50", Name: "Stickers"},
		},
		"42": {
			{ID: "43", Name: "Hoodie", Text: "Warm hoodie"},
			{ID: "44", Name: "T-Shirt", Text: "Classic tee"},
			{ID: "45", Name: "Cap", Text: "Snapback"},
		},
	}
}

func TestHomeRendersRootWithEmptyHistory(t *testing.T) {
	menu, history := Navigate([]string{"42", "43"}, Home(), testTree(), nil)

	assert.Equal(t, MenuRoot, menu.Kind)
	assert.Empty(t, history)
	require.Len(t, menu.Entries, 2)
	assert.Equal(t, "Apparel", menu.Entries[0].Name)
}

func TestSelectCategoryWithChildrenPushesHistory(t *testing.T) {
	menu, history := Navigate(nil, SelectByID("42"), testTree(), nil)

	assert.Equal(t, MenuSub, menu.Kind)
	assert.Equal(t, []string{"42"}, history)
	assert.Len(t, menu.Entries, 3)
	assert.Equal(t, "42", menu.CategoryID)
}

func TestSelectLeafDoesNotPush(t *testing.T) {
	menu, history := Navigate([]string{"42"}, SelectByID("43"), testTree(), nil)

	assert.Equal(t, MenuNav, menu.Kind)
	assert.Equal(t, []string{"42"}, history, "leaf selection must not grow history")
	require.NotNil(t, menu.Item)
	assert.Equal(t, "Hoodie", menu.Item.Name)
}

func TestLeafRoundTripFromRoot(t *testing.T) {
	// Selecting a root-level leaf and pressing Back lands on the same
	// root menu the user saw before the selection.
	tree := catalog.Tree{
		catalog.RootParentID: {{ID: "7", Name: "Gift Card", Text: "Plastic card"}},
	}

	before, history := Navigate(nil, Home(), tree, nil)
	afterLeaf, history := Navigate(history, SelectByID("7"), tree, nil)
	require.Equal(t, MenuNav, afterLeaf.Kind)
	assert.Empty(t, history)

	restored, history := Navigate(history, Back(), tree, nil)
	assert.Empty(t, history)
	assert.Equal(t, before.Kind, restored.Kind)
	assert.Equal(t, before.Entries, restored.Entries)
}

func TestBackFromSubMenuToRoot(t *testing.T) {
	menu, history := Navigate([]string{"42"}, Back(), testTree(), nil)

	assert.Equal(t, MenuRoot, menu.Kind)
	assert.Empty(t, history)
}

func TestBackNeverUnderflows(t *testing.T) {
	tree := testTree()
	history := []string{"42"}
	for i := 0; i < 10; i++ {
		var menu Menu
		menu, history = Navigate(history, Back(), tree, nil)
		assert.GreaterOrEqual(t, len(history), 0)
		if len(history) == 0 {
			assert.Equal(t, MenuRoot, menu.Kind)
		}
	}
}

func TestBackDoublePopRecoversFromLeafInHistory(t *testing.T) {
	// A leaf id incorrectly pushed on top must not trap the user.
	menu, history := Navigate([]string{"42", "43"}, Back(), testTree(), nil)

	assert.Equal(t, MenuSub, menu.Kind)
	assert.Equal(t, []string{"42"}, history)
	assert.Equal(t, "42", menu.CategoryID)
}

func TestBackWithRootSentinelInHistory(t *testing.T) {
	menu, history := Navigate([]string{catalog.RootParentID, "42"}, Back(), testTree(), nil)

	assert.Equal(t, MenuRoot, menu.Kind)
	assert.Equal(t, []string{catalog.RootParentID}, history)
}

func TestSelectByLabelResolved(t *testing.T) {
	resolver := labelMap{"Apparel": {ID: "42", Name: "Apparel"}}

	menu, history := Navigate(nil, SelectByLabel("Apparel"), testTree(), resolver)

	assert.Equal(t, MenuSub, menu.Kind)
	assert.Equal(t, []string{"42"}, history)
}

func TestUnmatchedLabelIgnored(t *testing.T) {
	resolver := labelMap{}

	menu, history := Navigate([]string{"42"}, SelectByLabel("No Such Button"), testTree(), resolver)

	assert.Equal(t, MenuSub, menu.Kind, "current menu re-rendered")
	assert.Equal(t, []string{"42"}, history, "history unchanged")
}

func TestRootPagination(t *testing.T) {
	tree := catalog.Tree{}
	for i := 0; i < 15; i++ {
		tree[catalog.RootParentID] = append(tree[catalog.RootParentID], catalog.Node{
			ID:   fmt.Sprintf("r%d", i),
			Name: fmt.Sprintf("Category %02d", i),
		})
	}

	first, history := Navigate(nil, Home(), tree, nil)
	assert.Len(t, first.Entries, RootPageSize)
	assert.True(t, first.HasMore)

	second, history := Navigate(history, More(1), tree, nil)
	assert.Len(t, second.Entries, 3)
	assert.False(t, second.HasMore)
	assert.Equal(t, 1, second.Page)
	assert.Empty(t, history, "pagination is not a history push")
}
