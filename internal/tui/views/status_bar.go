package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/rivo/tview"
)

// StatusBar displays persistent session status.
type StatusBar struct {
	*tview.TextView
	session string
	status  *api.StatusResponse
	flash   string
	hints   []string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the status display.
func (sb *StatusBar) SetStatus(s *api.StatusResponse) {
	sb.status = s
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

// SetHints sets the key hints shown at the right.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-]", sb.session)
	if s := sb.status; s != nil {
		net := "[red]offline[-]"
		if s.Online {
			net = "[green]online[-]"
		}
		if s.Wifi {
			net += " wifi"
		}
		line += fmt.Sprintf(" | %s | %s", s.State, net)
		if s.UserID != "" {
			line += " | " + tview.Escape(s.UserID)
		}
		if s.Unread > 0 {
			line += fmt.Sprintf(" | [yellow]%d unread[-]", s.Unread)
		}
	}
	line += " | " + time.Now().Format("15:04")
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	} else if len(sb.hints) > 0 {
		line += " | [gray]" + tview.Escape(strings.Join(sb.hints, "  ")) + "[-]"
	}

	_, _ = fmt.Fprint(sb, line)
}
