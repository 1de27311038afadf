// Package tui is the interactive terminal client of a chatsync session.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/engine"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pageConversations = "conversations"
	pageThread        = "thread"
	pageHelp          = "help"

	promptCommand = ":"
	promptFilter  = "/"
)

// Backend is the daemon as seen by the TUI.
type Backend interface {
	engine.Store
	model.Directory
}

// Options configures the TUI.
type Options struct {
	SessionName string
	Engine      engine.Options
	ListLimit   int
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	sess      *engine.Session
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	menu      *ui.Menu
	list      *views.ConversationList
	thread    *views.MessageThread
	help      *views.HelpView
	prompt    *tview.InputField
	mode      string
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI over a daemon connection. The app owns the
// engine session it builds.
func NewApp(b Backend, feed realtime.Feed, opts Options, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := engine.New(b, feed, nil, opts.Engine, log.Named("engine"))
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		sess:      sess,
		vm:        model.NewViewModel(b, sess, opts.ListLimit),
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		menu:      ui.NewMenu(theme),
		list:      views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		help:      views.NewHelpView(theme),
		prompt:    tview.NewInputField(),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(opts.SessionName, sess.Self())
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Rune: 'q', Key: tcell.KeyRune,
		Label: "q", Description: "Quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "command", Rune: ':', Key: tcell.KeyRune,
		Label: ":", Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(promptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Rune: '?', Key: tcell.KeyRune,
		Label: "?", Description: "Help", Visible: true,
		Handler: func() { a.switchTo(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "reload", Rune: 'R', Key: tcell.KeyRune,
		Label: "R", Description: "Reload",
		Handler: a.reload,
	})

	a.registry.AddView(pageConversations, &keys.Action{
		Name: "filter", Rune: '/', Key: tcell.KeyRune,
		Label: "/", Description: "Filter", Visible: true,
		Handler: func() { a.showPrompt(promptFilter) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Name: "clear", Key: tcell.KeyEscape,
		Handler: func() { a.list.SetFilter("") },
	})

	a.registry.AddView(pageThread, &keys.Action{
		Name: "compose", Rune: 'i', Key: tcell.KeyRune,
		Label: "i", Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Name: "like", Rune: 'l', Key: tcell.KeyRune,
		Label: "l", Description: "Like last", Visible: true,
		Handler: func() { a.async(a.vm.ToggleLike) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Name: "retry", Rune: 'r', Key: tcell.KeyRune,
		Label: "r", Description: "Retry failed", Visible: true,
		Handler: func() { a.async(a.vm.Retry) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Name: "discard", Rune: 'x', Key: tcell.KeyRune,
		Label: "x", Description: "Discard failed", Visible: true,
		Handler: func() { a.async(func(context.Context) error { return a.vm.Discard() }) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Name: "back", Key: tcell.KeyEscape,
		Label: "Esc", Description: "Back", Visible: true,
		Handler: func() { a.switchTo(pageConversations) },
	})
	a.registry.AddView(pageHelp, &keys.Action{
		Name: "back", Key: tcell.KeyEscape,
		Label: "Esc", Description: "Back", Visible: true,
		Handler: func() { a.switchTo(pageConversations) },
	})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if e, ok := a.list.EntryAt(row); ok {
			a.open(e)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) error { return a.vm.Send(ctx, text) })
	})
	a.thread.SetOnCancel(func() { a.app.SetFocus(a.thread.Messages()) })

	a.prompt.SetChangedFunc(func(text string) {
		if a.mode == promptFilter {
			a.list.SetFilter(text)
		}
	})
	a.prompt.SetDoneFunc(func(key tcell.Key) {
		text := a.prompt.GetText()
		mode := a.mode
		a.hidePrompt()
		if key != tcell.KeyEnter {
			if mode == promptFilter {
				a.list.SetFilter("")
			}
			return
		}
		if mode == promptCommand {
			a.execute(ParseCommand(text))
		}
	})
}

func (a *App) setupLayout() {
	a.prompt.SetFieldWidth(0)
	a.prompt.SetBackgroundColor(a.theme.BgColor)
	a.prompt.SetFieldBackgroundColor(a.theme.BgColor)
	a.prompt.SetFieldTextColor(a.theme.FgColor)
	a.prompt.SetLabelColor(a.theme.MenuKeyColor)

	a.pages.AddPage(pageConversations, a.list, true, true)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 1, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.refreshMenu()

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Text input widgets see every key; their done funcs handle Esc.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}
		if a.registry.HandleEvent(a.page(), event) {
			return nil
		}
		return event
	})
}

func (a *App) page() string {
	name, _ := a.pages.GetFrontPage()
	return name
}

func (a *App) switchTo(page string) {
	a.pages.SwitchToPage(page)
	switch page {
	case pageConversations:
		a.app.SetFocus(a.list)
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageHelp:
		a.app.SetFocus(a.help)
	}
	a.refreshMenu()
}

func (a *App) refreshMenu() {
	var hints []ui.MenuHint
	for _, act := range a.registry.Visible(a.page()) {
		hints = append(hints, ui.MenuHint{Key: act.Label, Description: act.Description})
	}
	a.menu.Update(hints)
}

func (a *App) showPrompt(mode string) {
	a.mode = mode
	a.prompt.SetLabel(mode)
	a.prompt.SetText("")
	if mode == promptFilter {
		a.prompt.SetText(a.list.Filter())
	}
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.mode = ""
	a.prompt.SetLabel("")
	a.prompt.SetText("")
	a.switchTo(a.page())
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "":
	case CmdOpen:
		e, ok := a.vm.Lookup(cmd.Args)
		if !ok {
			a.vm.Notify("unknown conversation " + cmd.Args)
			return
		}
		a.open(e)
	case CmdRetry:
		a.async(a.vm.Retry)
	case CmdDiscard:
		a.async(func(context.Context) error { return a.vm.Discard() })
	case CmdLike:
		a.async(a.vm.ToggleLike)
	case CmdReload:
		a.reload()
	case CmdHelp:
		a.switchTo(pageHelp)
	case CmdQuit:
		a.Stop()
	default:
		a.vm.Notify("unknown command " + cmd.Name)
	}
}

func (a *App) open(e model.Entry) {
	a.thread.SetTitle(e.Label)
	a.switchTo(pageThread)
	a.async(func(ctx context.Context) error { return a.vm.Open(ctx, e) })
}

func (a *App) reload() {
	a.async(a.vm.LoadDirectory)
}

// async runs fn off the UI goroutine. Failures the view model did not
// report already are shown as notices.
func (a *App) async(fn func(context.Context) error) {
	go func() {
		err := fn(a.ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, model.ErrNoConversation),
			errors.Is(err, model.ErrNothingFailed),
			errors.Is(err, model.ErrNothingToLike):
			a.vm.Notify(err.Error())
		default:
			a.log.Debug("action failed", zap.Error(err))
		}
	}()
}

// Run starts the TUI application and blocks until it quits.
func (a *App) Run() error {
	updates, stopViews := a.sess.Watch(32)
	statuses, stopStatuses := a.sess.Bus().Subscribe(bus.KindStatusChanged, 16)
	defer func() {
		a.cancel()
		stopViews()
		stopStatuses()
		a.sess.Close()
	}()

	go func() {
		for v := range updates {
			a.vm.ApplyView(v)
		}
	}()
	go func() {
		for {
			select {
			case evt := <-statuses:
				if c, ok := evt.Payload.(status.StatusChange); ok {
					a.vm.ApplyStatus(c)
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()
	go a.refreshLoop()
	go func() {
		if err := a.vm.LoadDirectory(a.ctx); err != nil {
			a.log.Warn("load conversations", zap.Error(err))
			a.vm.Notify("cannot load conversations: " + err.Error())
		}
	}()

	return a.app.Run()
}

// refreshLoop redraws on view model changes and ticks so expired notices
// disappear.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

func (a *App) render() {
	a.list.Update(a.vm.Entries())
	a.thread.Update(a.vm.Messages(), a.sess.Self(), a.vm.NameOf)
	if title, ok := a.vm.Title(); ok {
		if r, liked := a.vm.Reaction(); liked && r.Present {
			title += " (liked)"
		}
		a.thread.SetTitle(title)
	}
	a.statusBar.SetState(a.vm.Status())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
