package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/rivo/tview"
)

// MessageView displays messages for a single chat.
type MessageView struct {
	*tview.TextView
	chatName string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the chat name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(termText(name))))
}

// Update refreshes the message view. msgs arrive newest first.
func (mv *MessageView) Update(msgs []api.Message, me string) {
	mv.Clear()

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		sender := m.Sender
		if sender == "" {
			sender = m.UserID
		}
		if m.UserID == me {
			sender = "You"
		}

		ts := formatTimestamp(m.CreatedAt)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
			tview.Escape(termText(sender)), ts, m.Status, body(m))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}

func body(m api.Message) string {
	switch {
	case m.Deleted:
		return "[::i]message deleted[-:-:-]"
	case m.Type == string(model.MessageText), m.Type == string(model.MessageEmoji):
		return tview.Escape(termText(m.Text))
	case m.Type == string(model.MessageLocation):
		return fmt.Sprintf("[::i]location %.5f, %.5f[-:-:-]", m.Latitude, m.Longitude)
	default:
		return fmt.Sprintf("[::i]%s[-:-:-]", m.Type)
	}
}
