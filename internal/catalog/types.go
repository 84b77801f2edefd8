package catalog

import "context"

// RootParentID is the sentinel parent id of top-level categories.
const RootParentID = "0"

// Node is one category tree entry: either a folder with children or a
// terminal item whose Text is shown to the user.
type Node struct {
	ID        string `db:"id"`
	ParentID  string `db:"parent_id"`
	Name      string `db:"name"`
	Text      string `db:"description"`
	SortOrder int    `db:"sort_order"`
}

// ItemDetail is a terminal item together with its stored photo files.
type ItemDetail struct {
	Node
	Photos []string
}

// Tree maps a parent id to its ordered children. Order is the display order.
type Tree map[string][]Node

// Children returns the ordered child list for a parent, nil when absent.
func (t Tree) Children(parentID string) []Node {
	if t == nil {
		return nil
	}
	return t[parentID]
}

// HasChildren reports whether the node with the given id is a non-terminal category.
func (t Tree) HasChildren(id string) bool {
	return len(t.Children(id)) > 0
}

// Store is the external catalog collaborator the cache and search pull from.
type Store interface {
	ListAll(ctx context.Context) ([]Node, error)
	FindByID(ctx context.Context, id string) (*ItemDetail, error)
	Search(ctx context.Context, query string, limit int) ([]Node, error)
}
