package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/presenter"
	"github.com/harunnryd/synapchat/pkg/voice"
)

const (
	maxToasts = 3
	helpLine  = "s start · e end · m mute · q quit"
)

// Controller is the subset of voice.Controller the console drives.
type Controller interface {
	Snapshot() voice.Snapshot
	Start(ctx context.Context) error
	End(ctx context.Context) error
	ToggleMute(ctx context.Context) error
}

// Console redraws the widget on every state change and reads single-letter
// commands from its input.
type Console struct {
	out    io.Writer
	width  int
	styles Styles
	log    *slog.Logger

	mu     sync.Mutex
	view   presenter.View
	toasts []string
}

func NewConsole(out io.Writer, width int, log *slog.Logger) *Console {
	if width <= 0 {
		width = 48
	}
	return &Console{
		out:    out,
		width:  width,
		styles: NewStyles(DefaultTheme),
		log:    logging.NewComponentLogger(log, "tui.console"),
		view:   presenter.Render(voice.Snapshot{State: voice.StateIdle}),
	}
}

// OnStateChange implements voice.Listener.
func (c *Console) OnStateChange(change voice.StateChange) {
	c.mu.Lock()
	c.view = presenter.Render(change.Snapshot)
	c.mu.Unlock()
	c.draw()
}

// Notify implements notify.Notifier; the latest toasts stay on screen.
func (c *Console) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	c.toasts = append(c.toasts, n.Message)
	if len(c.toasts) > maxToasts {
		c.toasts = c.toasts[len(c.toasts)-maxToasts:]
	}
	c.mu.Unlock()
	c.draw()
	return nil
}

// Render returns the current frame.
func (c *Console) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame().Render(c.width)
}

func (c *Console) frame() Frame {
	v := c.view
	var status []string
	if v.Visual == presenter.VisualIdle {
		status = append(status, v.IdleLabel)
	} else {
		style := c.styles.Listening
		if v.Badge.Label == presenter.BadgeSpeaking {
			style = c.styles.Speaking
		}
		status = append(status, "● "+style.Render(v.Badge.Label))
	}
	action := string(v.MainAction.Kind)
	if v.MainAction.Disabled {
		action += " (disabled)"
	}
	status = append(status, "action: "+action)
	if v.Mute.Visible {
		mute := "on"
		if v.Mute.Muted {
			mute = "muted"
		}
		status = append(status, "sound:  "+mute)
	}

	sections := []Section{{Label: "Session", Lines: status}}
	if v.Error != "" {
		sections = append(sections, Section{Label: "Error", Lines: []string{c.styles.Error.Render(v.Error)}})
	}
	if len(c.toasts) > 0 {
		sections = append(sections, Section{Label: "Notifications", Lines: append([]string(nil), c.toasts...)})
	}
	return Frame{
		Styles:   c.styles,
		Title:    "SynapChat",
		Status:   v.State,
		Sections: sections,
		Help:     helpLine,
	}
}

func (c *Console) draw() {
	frame := c.Render()
	if _, err := fmt.Fprintln(c.out, frame); err != nil {
		c.log.Debug("draw failed", slog.String("error", err.Error()))
	}
}

// Run reads commands from in until quit, EOF or ctx is done. Action errors
// are already surfaced through the view, so they are only logged here.
func (c *Console) Run(ctx context.Context, in io.Reader, ctrl Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.view = presenter.Render(ctrl.Snapshot())
	c.mu.Unlock()
	c.draw()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			var err error
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "s", "start":
				err = ctrl.Start(ctx)
			case "e", "end":
				err = ctrl.End(ctx)
			case "m", "mute":
				err = ctrl.ToggleMute(ctx)
			case "q", "quit", "exit":
				return nil
			case "":
				c.draw()
				continue
			default:
				fmt.Fprintln(c.out, helpLine)
				continue
			}
			if err != nil {
				c.log.Debug("command failed", slog.String("command", line), slog.String("error", err.Error()))
			}
		}
	}
}

var (
	_ voice.Listener  = (*Console)(nil)
	_ notify.Notifier = (*Console)(nil)
)
