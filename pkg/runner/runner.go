package runner

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer releases resources before the process exits.
type Drainer interface {
	Drain() error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func() error

func (f DrainFunc) Drain() error { return f() }

// Service is a long-running component started by the runner. Returning
// from Run, with or without an error, stops the whole runner.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

var Version = "dev"

// BannerOptions controls the startup banner.
type BannerOptions struct {
	Disabled bool
	Title    string
	Out      io.Writer
}

func PrintBanner(opts BannerOptions) {
	if opts.Disabled {
		return
	}
	if opts.Title == "" {
		opts.Title = "SYNAPCHAT"
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	tpl := "{{ .Title \"" + opts.Title + "\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(opts.Out, true, false, bytes.NewBufferString(tpl))
}
