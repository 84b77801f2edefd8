package bot

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"merchbot/core/telegram/keyboard"
	"merchbot/internal/catalog"
	"merchbot/internal/nav"
)

// Callback uniques shared between keyboard builders and route registration.
const (
	uniqueCategory       = "cat"
	uniqueBack           = "nav_back"
	uniqueHome           = "nav_home"
	uniqueMore           = "nav_more"
	uniqueFeedbackCancel = "fb_cancel"
)

const (
	labelBack   = "⬅️ Back"
	labelHome   = "🏠 Home"
	labelMore   = "More ➡️"
	labelCancel = "❌ Cancel"

	categoriesPerRow = 2
)

// menuView renders a navigation menu into message text plus inline controls.
func menuView(menu nav.Menu) (string, *tele.ReplyMarkup) {
	switch menu.Kind {
	case nav.MenuRoot:
		return rootMenuView(menu)
	case nav.MenuSub:
		return subMenuView(menu)
	default:
		return "Where to next?", keyboard.InlineButtonsRows(navRow())
	}
}

func rootMenuView(menu nav.Menu) (string, *tele.ReplyMarkup) {
	if len(menu.Entries) == 0 {
		return "The catalog is empty right now. Please try again later.", nil
	}

	rows := entryRows(menu.Entries)
	var tail []keyboard.InlineBtn
	if menu.Page > 0 {
		tail = append(tail, keyboard.InlineBtn{
			Text: labelBack, Unique: uniqueMore, Data: strconv.Itoa(menu.Page - 1),
		})
	}
	if menu.HasMore {
		tail = append(tail, keyboard.InlineBtn{
			Text: labelMore, Unique: uniqueMore, Data: strconv.Itoa(menu.Page + 1),
		})
	}
	if len(tail) > 0 {
		rows = append(rows, tail)
	}

	text := "Please choose a category:"
	if menu.Page > 0 {
		text = fmt.Sprintf("Please choose a category (page %d):", menu.Page+1)
	}
	return text, keyboard.InlineButtonsRows(rows...)
}

func subMenuView(menu nav.Menu) (string, *tele.ReplyMarkup) {
	rows := entryRows(menu.Entries)
	rows = append(rows, navRow())
	return "Choose an option:", keyboard.InlineButtonsRows(rows...)
}

func entryRows(entries []catalog.Node) [][]keyboard.InlineBtn {
	buttons := make([]keyboard.InlineBtn, 0, len(entries))
	for _, e := range entries {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   e.Name,
			Unique: uniqueCategory,
			Data:   e.ID,
		})
	}
	var rows [][]keyboard.InlineBtn
	for i := 0; i < len(buttons); i += categoriesPerRow {
		end := i + categoriesPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

func navRow() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{
		{Text: labelBack, Unique: uniqueBack},
		{Text: labelHome, Unique: uniqueHome},
	}
}

func feedbackCancelKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: labelCancel, Unique: uniqueFeedbackCancel},
	})
}

// searchResultsText formats capped search results for one message.
func searchResultsText(nodes []catalog.Node, truncated int) string {
	if len(nodes) == 0 {
		return "Nothing found. Try a different keyword."
	}
	var sb strings.Builder
	sb.WriteString("Found:\n")
	for _, n := range nodes {
		sb.WriteString("• ")
		sb.WriteString(n.Name)
		sb.WriteByte('\n')
	}
	if truncated > 0 {
		fmt.Fprintf(&sb, "…and %d more. Narrow your query to see the rest.", truncated)
	}
	return strings.TrimRight(sb.String(), "\n")
}
