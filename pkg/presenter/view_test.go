package presenter

import (
	"testing"

	"github.com/harunnryd/synapchat/pkg/voice"
)

func TestRenderIdle(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateIdle, MicPermission: true})
	if v.Visual != VisualIdle || v.IdleLabel != IdleLabel {
		t.Fatalf("expected idle visual, got %+v", v)
	}
	if v.Video.Playing || !v.Video.Reset {
		t.Fatalf("video should be paused and rewound, got %+v", v.Video)
	}
	if v.Badge.Visible || v.Mute.Visible {
		t.Fatalf("badge and mute must be hidden when idle")
	}
	if v.MainAction.Kind != ActionStart || v.MainAction.Disabled {
		t.Fatalf("expected enabled start, got %+v", v.MainAction)
	}
}

func TestRenderPermissionPending(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateIdle})
	if v.MainAction.Kind != ActionLoading || !v.MainAction.Disabled {
		t.Fatalf("expected disabled loading action, got %+v", v.MainAction)
	}
}

func TestRenderPermissionDenied(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateIdle, LastError: "Microphone access denied"})
	if !v.MainAction.Disabled {
		t.Fatalf("main action must stay disabled without permission")
	}
	if v.Error != "Microphone access denied" {
		t.Fatalf("expected error banner, got %q", v.Error)
	}
}

func TestRenderConnectedBadge(t *testing.T) {
	listening := Render(voice.Snapshot{State: voice.StateConnected, MicPermission: true, SessionOpen: true})
	if listening.Badge.Label != BadgeListening || listening.Badge.Color != ColorBlue {
		t.Fatalf("unexpected badge %+v", listening.Badge)
	}
	speaking := Render(voice.Snapshot{State: voice.StateConnected, MicPermission: true, Speaking: true, SessionOpen: true})
	if speaking.Badge.Label != BadgeSpeaking || speaking.Badge.Color != ColorGreen {
		t.Fatalf("unexpected badge %+v", speaking.Badge)
	}
	if !speaking.Video.Playing || speaking.Visual != VisualConnected {
		t.Fatalf("video should play while connected")
	}
	if speaking.MainAction.Kind != ActionEnd || speaking.MainAction.Disabled {
		t.Fatalf("expected enabled end action, got %+v", speaking.MainAction)
	}
}

func TestRenderSpeakingIgnoredWhenNotConnected(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateConnecting, MicPermission: true, Speaking: true})
	if v.Badge.Visible {
		t.Fatalf("badge must be hidden outside connected")
	}
	if !v.MainAction.Disabled {
		t.Fatalf("main action disabled while connecting")
	}
}

func TestRenderMuteIcon(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateConnected, MicPermission: true, Muted: true})
	if !v.Mute.Visible || v.Mute.Icon != "volume-x" || !v.Mute.Muted {
		t.Fatalf("unexpected mute view %+v", v.Mute)
	}
	v = Render(voice.Snapshot{State: voice.StateConnected, MicPermission: true})
	if v.Mute.Icon != "volume-2" {
		t.Fatalf("unexpected icon %q", v.Mute.Icon)
	}
	v = Render(voice.Snapshot{State: voice.StateIdle, MicPermission: true, Muted: true})
	if v.Mute.Visible {
		t.Fatalf("mute hidden when not connected")
	}
}

func TestRenderErrorWithOpenSession(t *testing.T) {
	v := Render(voice.Snapshot{State: voice.StateError, MicPermission: true, SessionOpen: true, LastError: "network lost"})
	if v.MainAction.Kind != ActionEnd {
		t.Fatalf("open session in error should offer end, got %s", v.MainAction.Kind)
	}
	if v.Error != "network lost" {
		t.Fatalf("expected banner, got %q", v.Error)
	}
	v = Render(voice.Snapshot{State: voice.StateError, MicPermission: true})
	if v.MainAction.Kind != ActionStart {
		t.Fatalf("closed session in error should offer retry, got %s", v.MainAction.Kind)
	}
}
