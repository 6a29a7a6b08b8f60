// Package ui is the terminal front end: a chat panel, a system-messages
// panel fed by the logger, and an input line with slash commands.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"voynich/internal/engine"
	"voynich/internal/utils/log"
)

type UI struct {
	app     *tview.Application
	chatbox *tview.TextView
	syslog  *tview.TextView
	input   *tview.InputField

	engine *engine.Engine
	cancel context.CancelFunc

	current string // peer the input line talks to
}

func New(eng *engine.Engine) *UI {
	u := &UI{
		app:    tview.NewApplication(),
		engine: eng,
	}

	u.chatbox = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	u.chatbox.SetBorder(true).SetTitle(" chat ")

	u.syslog = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	u.syslog.SetBorder(true).SetTitle(" system messages ")

	u.input = tview.NewInputField().SetLabel("> ")
	u.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(u.input.GetText())
		u.input.SetText("")
		if text != "" {
			u.handleInput(text)
		}
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(u.syslog, 0, 1, false).
		AddItem(u.chatbox, 0, 3, false).
		AddItem(u.input, 1, 0, true)
	u.app.SetRoot(layout, true)

	return u
}

// Logger builds a zap logger whose output lands in the system-messages
// panel. Installed as the package logger before the event loop starts.
// TextView is safe to write from any goroutine.
func (u *UI) Logger(debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	u.syslog.SetChangedFunc(func() {
		u.app.Draw()
	})
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(tview.ANSIWriter(u.syslog)),
		level,
	)
	return zap.New(core)
}

// Run drives the event pump and the terminal application until quit.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	go u.pumpEvents(ctx)

	u.printSystem(fmt.Sprintf("your onion id is %s", u.engine.LocalID()))
	u.printSystem("type /help for a list of commands")

	err := u.app.Run()
	cancel()
	return err
}

func (u *UI) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			u.app.Stop()
			return
		case ev := <-u.engine.Events():
			u.app.QueueUpdateDraw(func() {
				u.handleEvent(ev)
			})
		}
	}
}

func (u *UI) handleEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventNewConnection:
		u.printSystem(fmt.Sprintf("connected to %s", ev.Peer))
		if u.current == "" {
			u.current = ev.Peer
		}
	case engine.EventMessage:
		u.printChat(ev.Message.Timestamp, ev.Message.Sender, ev.Message.Body)
	case engine.EventConnectionClosed:
		u.printSystem(fmt.Sprintf("lost connection to %s", ev.Peer))
		if u.current == ev.Peer {
			u.current = ""
			if peers := u.engine.Peers(); len(peers) > 0 {
				u.current = peers[0]
			}
		}
	case engine.EventError:
		u.printSystem(fmt.Sprintf("[red]error from %s: %v", ev.Peer, ev.Err))
	}
}

func (u *UI) handleInput(text string) {
	if strings.HasPrefix(text, "/") {
		u.handleCommand(strings.Fields(text[1:]))
		return
	}
	if u.current == "" {
		u.printSystem("[red]not connected; use /connect <onion-id>:<port>")
		return
	}
	if err := u.engine.Send(u.current, text); err != nil {
		u.printSystem(fmt.Sprintf("[red]send failed: %v", err))
		return
	}
	u.printChat(time.Now(), "you", text)
}

func (u *UI) handleCommand(args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "connect":
		if len(args) != 2 {
			u.printSystem("usage: /connect <onion-id>:<port>")
			return
		}
		u.connect(args[1])
	case "disconnect":
		if u.current == "" {
			u.printSystem("not connected")
			return
		}
		if err := u.engine.Disconnect(u.current); err != nil {
			u.printSystem(fmt.Sprintf("[red]%v", err))
		}
	case "help":
		u.printSystem("commands:")
		u.printSystem("   /connect <onion-id>:<port> - connect to a peer")
		u.printSystem("   /disconnect - close the current chat")
		u.printSystem("   /quit - exit")
	case "quit":
		u.cancel()
		u.app.Stop()
	default:
		u.printSystem(fmt.Sprintf("[red]unknown command '%s'", args[0]))
	}
}

func (u *UI) connect(address string) {
	host, portStr, ok := strings.Cut(address, ":")
	if !ok {
		u.printSystem("usage: /connect <onion-id>:<port>")
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		u.printSystem(fmt.Sprintf("[red]bad port %q", portStr))
		return
	}
	u.printSystem(fmt.Sprintf("connecting to %s...", host))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := u.engine.Connect(ctx, host, uint16(port)); err != nil {
			log.Error("connect failed", zap.Error(err))
		}
	}()
}

func (u *UI) printChat(ts time.Time, sender, body string) {
	fmt.Fprintf(u.chatbox, "[gray]%s [blue]%s:[-] %s\n",
		ts.Format("15:04:05"), tview.Escape(sender), tview.Escape(body))
	u.chatbox.ScrollToEnd()
}

func (u *UI) printSystem(line string) {
	fmt.Fprintf(u.syslog, "[gray]%s[-] %s\n", time.Now().Format("15:04:05"), line)
	u.syslog.ScrollToEnd()
}
