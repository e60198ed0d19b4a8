package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode        [%[1]s]Esc[-:-:-]   Cancel / Go back
  [%[1]s]/[-:-:-]      Filter chats        [%[1]s]?[-:-:-]     Help
  [%[1]s]q[-:-:-]      Quit

  [::b]Chat List[-:-:-]

  [%[1]s]Enter[-:-:-]  Open chat           [%[1]s]j/k[-:-:-]   Move down / up

  [::b]Chat[-:-:-]

  [%[1]s]i[-:-:-]      Focus composer      [%[1]s]d[-:-:-]     Chat details
  [%[1]s]m[-:-:-]      Mute / unmute       [%[1]s]Enter[-:-:-] Send (in composer)

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:single <user-id>[-:-:-]             Open a one-to-one chat
  [%[1]s]:group <name> [user-id...][-:-:-]     Create a group
  [%[1]s]:wifi on|off[-:-:-]                  Set the network type
  [%[1]s]:logout[-:-:-]                       Logout and wipe local data
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]                   Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]                   Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
