package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the sidebar of inbox, people and groups.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	entries []model.Entry
	rows    map[int]int // table row -> entry index
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
		rows:  map[int]int{},
	}
}

// Update replaces the entries and re-renders.
func (cl *ConversationList) Update(entries []model.Entry) {
	cl.entries = entries
	cl.render()
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// Filter returns the active filter text.
func (cl *ConversationList) Filter() string { return cl.filter }

func (cl *ConversationList) render() {
	cl.Clear()
	cl.rows = map[int]int{}

	row := 0
	shown := 0
	var section model.Section
	for i, e := range cl.entries {
		if cl.filter != "" && !containsFold(e.Label, cl.filter) {
			continue
		}
		if e.Section != section {
			section = e.Section
			cl.SetCell(row, 0, tview.NewTableCell(" "+string(section)).
				SetSelectable(false).
				SetTextColor(cl.theme.SectionHeaderFg).
				SetBackgroundColor(cl.theme.TableHeaderBg).
				SetAttributes(tcell.AttrBold).
				SetExpansion(1))
			row++
		}
		cl.SetCell(row, 0, tview.NewTableCell("   "+safe(e.Label)).
			SetExpansion(1).
			SetTextColor(cl.theme.FgColor))
		cl.rows[row] = i
		row++
		shown++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", shown, len(cl.entries), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.entries)))
	}
	cl.selectFirst()
}

func (cl *ConversationList) selectFirst() {
	cur, _ := cl.GetSelection()
	if _, ok := cl.rows[cur]; ok {
		return
	}
	for r := 0; r < cl.GetRowCount(); r++ {
		if _, ok := cl.rows[r]; ok {
			cl.Select(r, 0)
			return
		}
	}
}

// Selected returns the entry under the cursor.
func (cl *ConversationList) Selected() (model.Entry, bool) {
	row, _ := cl.GetSelection()
	return cl.EntryAt(row)
}

// EntryAt returns the entry rendered on a table row.
func (cl *ConversationList) EntryAt(row int) (model.Entry, bool) {
	i, ok := cl.rows[row]
	if !ok {
		return model.Entry{}, false
	}
	return cl.entries[i], true
}
