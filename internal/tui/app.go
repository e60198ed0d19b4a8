// Package tui is the terminal client of a chatsync daemon.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats   = "chats"
	pageChat    = "chat"
	pageDetails = "details"
	pageHelp    = "help"
	pageLogin   = "login"
	pagePrompt  = "prompt"

	muteFor       = 8 * time.Hour
	watchRetry    = 2 * time.Second
	statusRefresh = 30 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	chatInfo  *views.ChatInfo
	helpView  *views.HelpView
	loginView *views.LoginView
	prompt    *ui.Prompt
	back      string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c model.Backend, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		chatInfo:  views.NewChatInfo(theme),
		helpView:  views.NewHelpView(theme),
		loginView: views.NewLoginView(theme),
		prompt:    ui.NewPrompt(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.showPage(pageHelp, a.helpView) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: ":command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddView(pageChats, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageChat, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView(pageChat, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() { a.showDetails() },
	})
	a.registry.AddView(pageChat, "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Description: "m:mute", Visible: true,
		Handler: func() {
			a.async("Mute", func() error { return a.vm.ToggleMute(a.ctx, muteFor) })
		},
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		a.async("Send", func() error { return a.vm.SendText(a.ctx, text) })
	})
	a.composer.SetOnTyping(func(typing bool) {
		go func() { _ = a.vm.SetTyping(a.ctx, typing) }()
	})

	a.loginView.SetOnLogin(func(userID, email, token string) {
		go func() {
			err := a.vm.Login(a.ctx, userID, email, token)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.loginView.ShowMessage("Login failed: " + err.Error())
					return
				}
				a.render()
			})
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.async("Filter", func() error { return a.vm.SetSearch(a.ctx, text) })
		case ui.PromptCommand:
			cmd, err := ParseCommand(text)
			if err != nil {
				a.flash(err.Error())
				return
			}
			a.runCommand(cmd)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	promptFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(a.prompt, 3, 0, true)

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, chatFlex, true, false)
	a.pages.AddPage(pageDetails, a.chatInfo, true, false)
	a.pages.AddPage(pageHelp, a.helpView, true, false)
	a.pages.AddPage(pageLogin, a.loginView, true, false)
	a.pages.AddPage(pagePrompt, promptFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		// The prompt and the login form own every key.
		if currentPage == pagePrompt || currentPage == pageLogin {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			if a.app.GetFocus() == a.composer.InputField {
				a.app.SetFocus(a.msgView)
				return nil
			}
			switch currentPage {
			case pageChat:
				a.closeChat()
				return nil
			case pageDetails:
				a.showPage(pageChat, a.msgView)
				return nil
			case pageHelp:
				a.goBack()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) runCommand(cmd Command) {
	args := cmd.Fields()
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.showPage(pageHelp, a.helpView)
	case "search":
		a.async("Filter", func() error { return a.vm.SetSearch(a.ctx, cmd.Args) })
	case "single":
		a.createAndOpen(func() (string, error) { return a.vm.CreateSingle(a.ctx, args[0]) })
	case "group":
		a.createAndOpen(func() (string, error) { return a.vm.CreateGroup(a.ctx, args[0], args[1:]) })
	case "wifi":
		a.async("Wifi", func() error { return a.vm.SetWifi(a.ctx, args[0] == "on") })
	case "logout":
		a.async("Logout", func() error { return a.vm.Logout(a.ctx) })
	}
}

func (a *App) createAndOpen(create func() (string, error)) {
	go func() {
		id, err := create()
		if err != nil {
			a.vm.Flash.Err("Create failed", err)
			a.app.QueueUpdateDraw(a.render)
			return
		}
		a.app.QueueUpdateDraw(func() { a.openChat(id) })
	}()
}

func (a *App) openChat(id string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, id); err != nil {
			a.vm.Flash.Err("Load failed", err)
		}
		a.app.QueueUpdateDraw(func() {
			name := id
			if c, ok := a.vm.ActiveChatInfo(); ok {
				name = views.ChatTitle(c)
			}
			a.composer.Reset()
			a.msgView.SetChatName(name)
			a.render()
			a.showPage(pageChat, a.msgView)
		})
	}()
}

func (a *App) closeChat() {
	if a.composer.GetText() != "" {
		go func(ctx context.Context) { _ = a.vm.SetTyping(ctx, false) }(a.ctx)
	}
	a.composer.Reset()
	a.vm.CloseChat()
	a.showPage(pageChats, a.chatList)
}

func (a *App) showDetails() {
	go func() {
		if err := a.vm.LoadMembers(a.ctx); err != nil {
			a.vm.Flash.Err("Members", err)
		}
		a.app.QueueUpdateDraw(func() {
			a.render()
			a.showPage(pageDetails, a.chatInfo)
		})
	}()
}

func (a *App) showPage(name string, focus tview.Primitive) {
	current, _ := a.pages.GetFrontPage()
	if name == pageHelp && current != pageHelp {
		a.back = current
	}
	a.pages.SwitchToPage(name)
	a.app.SetFocus(focus)
	a.statusBar.SetHints(a.registry.Hints(name))
}

func (a *App) goBack() {
	switch a.back {
	case pageChat:
		a.showPage(pageChat, a.msgView)
	case pageDetails:
		a.showPage(pageDetails, a.chatInfo)
	default:
		a.showPage(pageChats, a.chatList)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	var text string
	if mode == ui.PromptFilter {
		text = a.vm.GetSearch()
	}
	a.prompt.Activate(mode, text)
	a.pages.ShowPage(pagePrompt)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.pages.HidePage(pagePrompt)
	current, _ := a.pages.GetFrontPage()
	switch current {
	case pageChat:
		a.app.SetFocus(a.msgView)
	case pageDetails:
		a.app.SetFocus(a.chatInfo)
	case pageHelp:
		a.app.SetFocus(a.helpView)
	default:
		a.app.SetFocus(a.chatList)
	}
}

// async runs fn off the UI goroutine and reports its error as a flash.
func (a *App) async(what string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			a.vm.Flash.Err(what+" failed", err)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) flash(msg string) {
	a.vm.Flash.Set(msg, 5*time.Second)
	a.render()
}

// render copies view model state into the widgets. It runs on the UI
// goroutine.
func (a *App) render() {
	st := a.vm.GetStatus()
	a.statusBar.SetStatus(st)
	a.statusBar.SetFlash(a.vm.Flash.Get())

	current, _ := a.pages.GetFrontPage()
	if a.vm.LoggedOut() {
		if current != pageLogin {
			a.composer.Reset()
			a.vm.CloseChat()
			a.loginView.ShowMessage("")
			a.pages.HidePage(pagePrompt)
			a.showPage(pageLogin, a.loginView.Form())
		}
		return
	}
	if current == pageLogin {
		a.showPage(pageChats, a.chatList)
	}

	a.chatList.Update(a.vm.GetChats())
	if a.vm.ActiveChat() == "" {
		return
	}
	me := ""
	if st != nil {
		me = st.UserID
	}
	a.msgView.Update(a.vm.GetMessages(), me)
	if c, ok := a.vm.ActiveChatInfo(); ok {
		a.chatInfo.Update(c, a.vm.GetMembers())
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadStatus(a.ctx); err != nil {
			a.vm.Flash.Err("Status failed", err)
		}
		if !a.vm.LoggedOut() {
			_ = a.vm.LoadChats(a.ctx)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
	go a.watchLoop()
	go a.refreshLoop()

	return a.app.Run()
}

// watchLoop follows daemon events, reconnecting while the app runs.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		if err := a.vm.Watch(a.ctx); err != nil {
			a.vm.Flash.Err("Daemon stream", err)
			a.app.QueueUpdateDraw(a.render)
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(watchRetry):
		}
	}
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-ticker.C:
			_ = a.vm.LoadStatus(a.ctx)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
