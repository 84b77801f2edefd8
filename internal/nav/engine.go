// Package nav computes menu transitions for the storefront bot. It is pure:
// given the navigation history, a user action, and a tree snapshot it
// returns the next menu and the new history, performing no I/O.
package nav

import "merchbot/internal/catalog"

// RootPageSize caps how many top-level categories one root menu page shows.
const RootPageSize = 12

// ActionKind tags the inbound user action.
type ActionKind int

const (
	ActionSelectByID ActionKind = iota
	ActionSelectByLabel
	ActionBack
	ActionHome
	ActionMore
)

// Action is a resolved inbound navigation event. Button presses carry an id,
// reply-keyboard presses carry the visible label; the distinction is made
// once at the transport boundary.
type Action struct {
	Kind  ActionKind
	ID    string
	Label string
	Page  int
}

// SelectByID selects a category by its id.
func SelectByID(id string) Action { return Action{Kind: ActionSelectByID, ID: id} }

// SelectByLabel selects a category by its button label.
func SelectByLabel(label string) Action { return Action{Kind: ActionSelectByLabel, Label: label} }

// Back pops one level of history.
func Back() Action { return Action{Kind: ActionBack} }

// Home clears history and returns to the root menu.
func Home() Action { return Action{Kind: ActionHome} }

// More shows the requested root menu page. Pure pagination, no history push.
func More(page int) Action { return Action{Kind: ActionMore, Page: page} }

// MenuKind distinguishes the three renderable menus.
type MenuKind int

const (
	// MenuRoot lists top-level categories.
	MenuRoot MenuKind = iota
	// MenuSub lists one category's children plus nav buttons.
	MenuSub
	// MenuNav shows only nav buttons, after terminal item content.
	MenuNav
)

// Menu is what the delivery layer renders next.
type Menu struct {
	Kind       MenuKind
	CategoryID string
	Entries    []catalog.Node
	Page       int
	HasMore    bool
	// Item is set when a terminal leaf was selected; its content is
	// delivered before the MenuNav buttons.
	Item *catalog.Node
}

// LabelResolver maps a visible button label to its node. Implemented by the
// hierarchy cache over the same snapshot the tree came from.
type LabelResolver interface {
	ResolveLabel(label string) (catalog.Node, bool)
}

// Navigate applies one action and returns the menu to display plus the new
// history. An unmatched label is ignored: the current menu is recomputed and
// history is unchanged.
func Navigate(history []string, act Action, tree catalog.Tree, resolve LabelResolver) (Menu, []string) {
	switch act.Kind {
	case ActionHome:
		return rootMenu(tree, 0), nil

	case ActionMore:
		page := act.Page
		if page < 0 {
			page = 0
		}
		return rootMenu(tree, page), history

	case ActionSelectByLabel:
		if resolve == nil {
			return currentMenu(history, tree), history
		}
		node, ok := resolve.ResolveLabel(act.Label)
		if !ok {
			return currentMenu(history, tree), history
		}
		return selectNode(history, node.ID, tree)

	case ActionSelectByID:
		return selectNode(history, act.ID, tree)

	case ActionBack:
		return back(history, tree)
	}

	return currentMenu(history, tree), history
}

func selectNode(history []string, id string, tree catalog.Tree) (Menu, []string) {
	children := tree.Children(id)
	if len(children) > 0 {
		next := append(append([]string(nil), history...), id)
		return Menu{Kind: MenuSub, CategoryID: id, Entries: children}, next
	}

	// Terminal leaf: never pushed, content is delivered and only nav
	// buttons remain.
	menu := Menu{Kind: MenuNav}
	if node, ok := findNode(tree, id); ok {
		menu.Item = &node
	}
	return menu, history
}

func back(history []string, tree catalog.Tree) (Menu, []string) {
	// Two pops at most: tolerates a leaf id that slipped into history,
	// so the user is never stuck in a menu with no children.
	for attempt := 0; attempt < 2; attempt++ {
		if len(history) == 0 {
			return rootMenu(tree, 0), history
		}
		history = history[:len(history)-1]
		if len(history) == 0 {
			return rootMenu(tree, 0), history
		}
		top := history[len(history)-1]
		if top == catalog.RootParentID {
			return rootMenu(tree, 0), history
		}
		if children := tree.Children(top); len(children) > 0 {
			return Menu{Kind: MenuSub, CategoryID: top, Entries: children}, history
		}
	}
	return rootMenu(tree, 0), nil
}

// currentMenu recomputes the menu for an unchanged history.
func currentMenu(history []string, tree catalog.Tree) Menu {
	if len(history) == 0 {
		return rootMenu(tree, 0)
	}
	top := history[len(history)-1]
	if top == catalog.RootParentID {
		return rootMenu(tree, 0)
	}
	if children := tree.Children(top); len(children) > 0 {
		return Menu{Kind: MenuSub, CategoryID: top, Entries: children}
	}
	return rootMenu(tree, 0)
}

func rootMenu(tree catalog.Tree, page int) Menu {
	roots := tree.Children(catalog.RootParentID)
	start := page * RootPageSize
	if start >= len(roots) {
		page = 0
		start = 0
	}
	end := start + RootPageSize
	if end > len(roots) {
		end = len(roots)
	}
	return Menu{
		Kind:    MenuRoot,
		Entries: roots[start:end],
		Page:    page,
		HasMore: end < len(roots),
	}
}

func findNode(tree catalog.Tree, id string) (catalog.Node, bool) {
	for _, bucket := range tree {
		for _, n := range bucket {
			if n.ID == id {
				return n, true
			}
		}
	}
	return catalog.Node{}, false
}
