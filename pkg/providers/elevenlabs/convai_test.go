package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/synapchat/pkg/audio"
	"github.com/harunnryd/synapchat/pkg/providers/mock"
	"github.com/harunnryd/synapchat/pkg/resilience"
	"github.com/harunnryd/synapchat/pkg/voice"
)

type fakeEvents struct {
	ch chan string

	mu       sync.Mutex
	messages []voice.Message
	errs     []error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ch: make(chan string, 64)}
}

func (f *fakeEvents) OnConnect()    { f.ch <- "connect" }
func (f *fakeEvents) OnDisconnect() { f.ch <- "disconnect" }

func (f *fakeEvents) OnMessage(msg voice.Message) {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	f.ch <- "message:" + string(msg.Source)
}

func (f *fakeEvents) OnError(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
	f.ch <- "error"
}

func (f *fakeEvents) OnSpeakingChanged(speaking bool) {
	if speaking {
		f.ch <- "speaking"
	} else {
		f.ch <- "listening"
	}
}

func (f *fakeEvents) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-f.ch:
		if got != want {
			t.Fatalf("expected event %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// fakeServer upgrades one conversation and hands the server side to script.
func fakeServer(t *testing.T, script func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendJSON(conn *websocket.Conn, v any) {
	_ = conn.WriteJSON(v)
}

func metadata() map[string]any {
	return map[string]any{
		"type": "conversation_initiation_metadata",
		"conversation_initiation_metadata_event": map[string]any{
			"conversation_id":           "conv_1",
			"agent_output_audio_format": "pcm_16000",
		},
	}
}

// drain reads until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStartSessionSendsAgentAndKey(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := fakeServer(t, func(conn *websocket.Conn, r *http.Request) {
		seen <- r
		sendJSON(conn, metadata())
		drain(conn)
	})

	events := newFakeEvents()
	client := New(Config{APIKey: "sk_test", BaseURL: wsURL(srv)}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "agent_abc"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")

	r := <-seen
	if got := r.URL.Query().Get("agent_id"); got != "agent_abc" {
		t.Fatalf("expected agent_id query, got %q", got)
	}
	if got := r.Header.Get("xi-api-key"); got != "sk_test" {
		t.Fatalf("expected api key header, got %q", got)
	}
	if client.ConversationID() != "conv_1" {
		t.Fatalf("expected conversation id, got %q", client.ConversationID())
	}

	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "agent_abc"}); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	if err := client.EndSession(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}
	events.expect(t, "disconnect")
}

func TestMessagesAndSpeaking(t *testing.T) {
	pcm := audio.SamplesToBytes([]int16{1000, -1000})
	release := make(chan struct{})
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sendJSON(conn, metadata())
		<-release
		sendJSON(conn, map[string]any{
			"type":                 "agent_response",
			"agent_response_event": map[string]any{"agent_response": "Hello! How can I help?"},
		})
		sendJSON(conn, map[string]any{
			"type":        "audio",
			"audio_event": map[string]any{"event_id": 1, "audio_base_64": base64.StdEncoding.EncodeToString(pcm)},
		})
		sendJSON(conn, map[string]any{
			"type":                     "user_transcript",
			"user_transcription_event": map[string]any{"user_transcript": "What's the weather?"},
		})
		drain(conn)
	})

	events := newFakeEvents()
	sink := audio.NewDiscard(true)
	client := New(Config{BaseURL: wsURL(srv), Sink: sink, QuietPeriod: 50 * time.Millisecond}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")
	if err := client.SetVolume(context.Background(), 0.5); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	close(release)
	events.expect(t, "message:ai")
	events.expect(t, "speaking")
	events.expect(t, "message:user")
	events.expect(t, "listening")

	chunks := sink.Chunks()
	if len(chunks) != 1 {
		t.Fatalf("expected one audio chunk, got %d", len(chunks))
	}
	if got := audio.BytesToSamples(chunks[0]); got[0] != 500 || got[1] != -500 {
		t.Fatalf("expected scaled samples, got %v", got)
	}

	events.mu.Lock()
	if events.messages[0].Text != "Hello! How can I help?" || events.messages[1].Text != "What's the weather?" {
		t.Fatalf("unexpected messages %+v", events.messages)
	}
	events.mu.Unlock()

	_ = client.EndSession(context.Background())
	events.expect(t, "disconnect")
}

func TestInterruptionStopsSpeaking(t *testing.T) {
	release := make(chan struct{})
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sendJSON(conn, metadata())
		sendJSON(conn, map[string]any{"type": "audio", "audio_event": map[string]any{"audio_base_64": base64.StdEncoding.EncodeToString([]byte{0, 0})}})
		<-release
		sendJSON(conn, map[string]any{"type": "interruption", "interruption_event": map[string]any{"event_id": 2}})
		drain(conn)
	})

	events := newFakeEvents()
	client := New(Config{BaseURL: wsURL(srv), QuietPeriod: time.Minute}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")
	events.expect(t, "speaking")
	close(release)
	events.expect(t, "listening")
	_ = client.EndSession(context.Background())
	events.expect(t, "disconnect")
}

func TestStaleQuietTimerKeepsSpeaking(t *testing.T) {
	events := newFakeEvents()
	client := New(Config{QuietPeriod: time.Hour}, events)

	client.playAudio([]byte{0, 0})
	events.expect(t, "speaking")
	client.mu.Lock()
	stale := client.quietGen
	client.mu.Unlock()

	client.playAudio([]byte{0, 0})
	client.quietElapsed(stale)

	client.mu.Lock()
	speaking, current := client.speaking, client.quietGen
	client.mu.Unlock()
	if !speaking {
		t.Fatalf("expected speaking after a stale quiet timer")
	}
	select {
	case got := <-events.ch:
		t.Fatalf("unexpected event %q", got)
	default:
	}

	client.quietElapsed(current)
	events.expect(t, "listening")
	client.stopSpeaking()
}

func TestPingAnsweredWithPong(t *testing.T) {
	pong := make(chan map[string]any, 1)
	waited := make(chan time.Duration, 1)
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sent := time.Now()
		sendJSON(conn, map[string]any{"type": "ping", "ping_event": map[string]any{"event_id": 7, "ping_ms": 40}})
		var reply map[string]any
		if err := conn.ReadJSON(&reply); err == nil {
			waited <- time.Since(sent)
			pong <- reply
		}
		drain(conn)
	})

	client := New(Config{BaseURL: wsURL(srv)}, newFakeEvents())
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case reply := <-pong:
		if reply["type"] != "pong" || reply["event_id"] != float64(7) {
			t.Fatalf("unexpected pong %v", reply)
		}
		if d := <-waited; d < 40*time.Millisecond {
			t.Fatalf("pong sent after %s, expected the ping_ms delay", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no pong received")
	}
	_ = client.EndSession(context.Background())
}

func TestServerErrorEvent(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sendJSON(conn, metadata())
		sendJSON(conn, map[string]any{"type": "error", "error_event": map[string]any{"error_type": "quota", "message": "network lost"}})
		drain(conn)
	})

	events := newFakeEvents()
	client := New(Config{BaseURL: wsURL(srv)}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")
	events.expect(t, "error")

	events.mu.Lock()
	got := voice.ErrorMessage(events.errs[0])
	events.mu.Unlock()
	if got != "network lost" {
		t.Fatalf("expected verbatim message, got %q", got)
	}
	_ = client.EndSession(context.Background())
	events.expect(t, "disconnect")
}

func TestRemoteCloseReportsDisconnect(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sendJSON(conn, metadata())
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	events := newFakeEvents()
	client := New(Config{BaseURL: wsURL(srv)}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")
	events.expect(t, "disconnect")

	if err := client.SetVolume(context.Background(), 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
	if err := client.EndSession(context.Background()); err != nil {
		t.Fatalf("end after remote close should be a no-op: %v", err)
	}
}

func TestAbnormalCloseReportsError(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		sendJSON(conn, metadata())
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "agent not found"))
	})

	events := newFakeEvents()
	client := New(Config{BaseURL: wsURL(srv)}, events)
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "missing"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	events.expect(t, "connect")
	events.expect(t, "error")
	events.expect(t, "disconnect")

	events.mu.Lock()
	defer events.mu.Unlock()
	if got := voice.ErrorMessage(events.errs[0]); got != "agent not found" {
		t.Fatalf("unexpected error message %q", got)
	}
}

func TestRateLimitedDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: wsURL(srv)}, newFakeEvents())
	err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestMicrophoneChunksAreForwarded(t *testing.T) {
	got := make(chan string, 1)
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]string
		if json.Unmarshal(data, &msg) == nil {
			got <- msg["user_audio_chunk"]
		}
		drain(conn)
	})

	src := mock.NewSource([]byte{1, 2, 3, 4})
	client := New(Config{BaseURL: wsURL(srv), Source: src}, newFakeEvents())
	if err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case encoded := <-got:
		if encoded != base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}) {
			t.Fatalf("unexpected chunk %q", encoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no audio chunk received")
	}
	_ = client.EndSession(context.Background())
	if src.Stops() != 1 {
		t.Fatalf("expected microphone stopped once, got %d", src.Stops())
	}
}

func TestMicrophoneStartFailureAbortsSession(t *testing.T) {
	srv := fakeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drain(conn)
	})

	src := mock.NewSource()
	src.StartErr = errors.New("device busy")
	sink := audio.NewDiscard(false)
	client := New(Config{BaseURL: wsURL(srv), Source: src, Sink: sink}, newFakeEvents())
	err := client.StartSession(context.Background(), voice.SessionConfig{AgentID: "a"})
	if err == nil || !strings.Contains(err.Error(), "device busy") {
		t.Fatalf("expected microphone error, got %v", err)
	}
	if err := client.SetVolume(context.Background(), 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("session must not be open, got %v", err)
	}
}
