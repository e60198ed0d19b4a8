package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	onTyping func(typing bool)
	typing   bool
}

// NewComposer creates a new message composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetChangedFunc(func(text string) {
		c.setTyping(text != "")
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			text := c.GetText()
			if text != "" {
				c.onSend(text)
				c.SetText("")
			}
		}
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnTyping sets the callback fired when the input turns empty or
// non-empty.
func (c *Composer) SetOnTyping(fn func(typing bool)) {
	c.onTyping = fn
}

// Reset clears the input without reporting typing.
func (c *Composer) Reset() {
	c.typing = false
	onTyping := c.onTyping
	c.onTyping = nil
	c.SetText("")
	c.onTyping = onTyping
}

func (c *Composer) setTyping(typing bool) {
	if typing == c.typing {
		return
	}
	c.typing = typing
	if c.onTyping != nil {
		c.onTyping(typing)
	}
}
