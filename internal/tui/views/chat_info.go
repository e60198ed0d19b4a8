package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatInfo displays details of the open chat.
type ChatInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewChatInfo creates a new chat details view.
func NewChatInfo(theme *ui.Theme) *ChatInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitle(" Chat Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ChatInfo{TextView: tv, theme: theme}
}

// Update renders chat details.
func (ci *ChatInfo) Update(chat api.Chat, members []string) {
	ci.Clear()

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	chatType := "Direct Message"
	if chat.IsGroup {
		chatType = "Group"
		if chat.GroupDeleted {
			chatType += " (deleted)"
		}
	}
	muted := "no"
	if chat.MutedUntil > time.Now().UnixMilli() {
		muted = "until " + time.UnixMilli(chat.MutedUntil).Format("2006-01-02 15:04")
	}
	lastActive := formatTimestamp(chat.LastMessageAt)
	if lastActive == "" {
		lastActive = "-"
	}

	rows := [][2]string{
		{"Name", ChatTitle(chat)},
		{"ID", chat.ID},
		{"Type", chatType},
		{"Unread", fmt.Sprint(chat.Unread)},
		{"Muted", muted},
		{"Archived", fmt.Sprint(chat.Archived)},
		{"Last Active", lastActive},
		{"Members", strings.Join(members, ", ")},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-12s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, tview.Escape(termText(r[1])))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(termText(ChatTitle(chat)))))
}
