// Package presenter derives the widget's visual state from a controller
// snapshot. Render is pure; the web and terminal front ends only draw it.
package presenter

import "github.com/harunnryd/synapchat/pkg/voice"

const (
	VisualIdle      = "idle"
	VisualConnected = "connected"

	IdleLabel = "Ready to Connect"

	BadgeSpeaking  = "AI Speaking"
	BadgeListening = "Listening"

	ColorGreen = "green"
	ColorBlue  = "blue"
	ColorRed   = "red"
	ColorWhite = "white"
)

type ActionKind string

const (
	ActionLoading ActionKind = "loading"
	ActionStart   ActionKind = "start"
	ActionEnd     ActionKind = "end"
)

type View struct {
	State      string     `json:"state"`
	Visual     string     `json:"visual"`
	IdleLabel  string     `json:"idle_label,omitempty"`
	Video      Video      `json:"video"`
	Badge      Badge      `json:"badge"`
	MainAction MainAction `json:"main_action"`
	Mute       Mute       `json:"mute"`
	Error      string     `json:"error,omitempty"`
}

// Video drives the background animation. Reset rewinds to the first frame.
type Video struct {
	Playing bool `json:"playing"`
	Reset   bool `json:"reset"`
}

type Badge struct {
	Visible bool   `json:"visible"`
	Label   string `json:"label,omitempty"`
	Color   string `json:"color,omitempty"`
}

type MainAction struct {
	Kind     ActionKind `json:"kind"`
	Icon     string     `json:"icon"`
	Color    string     `json:"color"`
	Disabled bool       `json:"disabled"`
}

type Mute struct {
	Visible bool   `json:"visible"`
	Muted   bool   `json:"muted"`
	Icon    string `json:"icon,omitempty"`
}

// Render maps a snapshot to a view.
func Render(s voice.Snapshot) View {
	connected := s.State == voice.StateConnected
	v := View{
		State: s.State.String(),
		Error: s.LastError,
	}

	if connected {
		v.Visual = VisualConnected
		v.Video = Video{Playing: true}
		v.Badge = Badge{Visible: true, Label: BadgeListening, Color: ColorBlue}
		if s.Speaking {
			v.Badge.Label = BadgeSpeaking
			v.Badge.Color = ColorGreen
		}
		v.Mute = Mute{Visible: true, Muted: s.Muted, Icon: "volume-2"}
		if s.Muted {
			v.Mute.Icon = "volume-x"
		}
	} else {
		v.Visual = VisualIdle
		v.IdleLabel = IdleLabel
		v.Video = Video{Reset: true}
	}

	v.MainAction = mainAction(s)
	return v
}

func mainAction(s voice.Snapshot) MainAction {
	if !s.MicPermission {
		return MainAction{Kind: ActionLoading, Icon: "loader", Color: ColorWhite, Disabled: true}
	}
	busy := s.ActionInFlight || s.State == voice.StateConnecting || s.State == voice.StateDisconnecting
	switch {
	case s.State == voice.StateConnected,
		s.State == voice.StateDisconnecting,
		s.State == voice.StateError && s.SessionOpen:
		return MainAction{Kind: ActionEnd, Icon: "phone-hangup", Color: ColorRed, Disabled: busy}
	default:
		return MainAction{Kind: ActionStart, Icon: "mic", Color: ColorWhite, Disabled: busy}
	}
}
