package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// LoginView asks for the account the daemon syncs.
type LoginView struct {
	*tview.Flex
	form    *tview.Form
	message *tview.TextView
	onLogin func(userID, email, token string)
}

// NewLoginView creates the login form.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetTitle(" Login Required ")
	form.SetTitleColor(theme.TitleColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	lv := &LoginView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(form, 11, 0, true).
			AddItem(message, 2, 0, false),
		form:    form,
		message: message,
	}

	form.AddInputField("User ID", "", 40, nil, nil).
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Relay token", "", 40, '*', nil).
		AddButton("Login", lv.submit)

	return lv
}

// SetOnLogin sets the callback for a submitted form.
func (lv *LoginView) SetOnLogin(fn func(userID, email, token string)) {
	lv.onLogin = fn
}

// Form returns the form, for focusing.
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}

// ShowMessage displays a status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprint(lv.message, tview.Escape(msg))
}

func (lv *LoginView) submit() {
	userID := lv.field("User ID")
	if userID == "" {
		lv.ShowMessage("User ID is required")
		return
	}
	if lv.onLogin != nil {
		lv.ShowMessage("Logging in...")
		lv.onLogin(userID, lv.field("Email"), lv.field("Relay token"))
	}
}

func (lv *LoginView) field(label string) string {
	if in, ok := lv.form.GetFormItemByLabel(label).(*tview.InputField); ok {
		return in.GetText()
	}
	return ""
}
