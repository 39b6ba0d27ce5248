// Package elevenlabs implements voice.SessionClient on top of the ElevenLabs
// Agents Platform conversation websocket.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/synapchat/pkg/audio"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/resilience"
	"github.com/harunnryd/synapchat/pkg/voice"
)

const defaultBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

var (
	ErrAlreadyStarted = errors.New("elevenlabs: session already started")
	ErrNotConnected   = errors.New("elevenlabs: not connected")
)

type Config struct {
	// APIKey is optional for public agents.
	APIKey      string
	BaseURL     string
	DialTimeout time.Duration
	// ReadTimeout bounds the wait for the next server message. The server
	// pings periodically, so silence beyond this means the link is dead.
	ReadTimeout time.Duration
	// QuietPeriod is how long after the last audio chunk the agent is
	// considered done speaking.
	QuietPeriod time.Duration

	// Source and Sink are optional local devices.
	Source audio.Source
	Sink   audio.Sink

	Logger *slog.Logger
}

// Client is a single conversation. It reports through the voice.Events it
// was created with.
type Client struct {
	cfg    Config
	events voice.Events
	log    *slog.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	cancel         context.CancelFunc
	done           chan struct{}
	volume         float64
	speaking       bool
	quiet          *time.Timer
	quietGen       uint64
	conversationID string

	writeMu sync.Mutex
	// speakMu orders speaking flag changes with their OnSpeakingChanged calls.
	speakMu sync.Mutex
}

func New(cfg Config, events voice.Events) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 400 * time.Millisecond
	}
	return &Client{
		cfg:    cfg,
		events: events,
		log:    logging.NewComponentLogger(cfg.Logger, "provider.elevenlabs"),
		volume: 1,
	}
}

// Factory adapts New to voice.ClientFactory.
func Factory(cfg Config) voice.ClientFactory {
	return func(events voice.Events) voice.SessionClient {
		return New(cfg, events)
	}
}

// StartSession dials the conversation socket. The session counts as
// connected once the server sends its initiation metadata.
func (c *Client) StartSession(ctx context.Context, sc voice.SessionConfig) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	u, err := c.buildURL(sc.AgentID)
	if err != nil {
		return err
	}
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("xi-api-key", c.cfg.APIKey)
	}

	c.log.Debug("connecting to ElevenLabs", slog.String("agent_id", sc.AgentID))

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			c.log.Error("ElevenLabs rate limit exceeded", slog.String("status", resp.Status))
			return resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		if resp != nil {
			return fmt.Errorf("elevenlabs: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("elevenlabs: dial: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := c.startDevices(runCtx); err != nil {
		cancel()
		_ = conn.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.readLoop(runCtx, conn, done)
	if c.cfg.Source != nil {
		go c.pumpMicrophone(runCtx)
	}
	return nil
}

// EndSession closes the socket and waits for the read loop to report the
// disconnect. Ending a session that is not open is a no-op.
func (c *Client) EndSession(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	cancel()
	c.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	closeErr := conn.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("elevenlabs: end session: %w", ctx.Err())
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("elevenlabs: close: %w", closeErr)
	}
	return nil
}

// SetVolume scales agent audio written to the sink.
func (c *Client) SetVolume(_ context.Context, volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	c.volume = volume
	return nil
}

// ConversationID returns the id assigned by the server, if any.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Client) buildURL(agentID string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) startDevices(ctx context.Context) error {
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Start(ctx); err != nil {
			return fmt.Errorf("elevenlabs: start speaker: %w", err)
		}
	}
	if c.cfg.Source != nil {
		if err := c.cfg.Source.Start(ctx); err != nil {
			if c.cfg.Sink != nil {
				_ = c.cfg.Sink.Stop()
			}
			return fmt.Errorf("elevenlabs: start microphone: %w", err)
		}
	}
	return nil
}

func (c *Client) stopDevices() {
	if c.cfg.Source != nil {
		_ = c.cfg.Source.Stop()
	}
	if c.cfg.Sink != nil {
		_ = c.cfg.Sink.Stop()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer c.events.OnDisconnect()
	defer c.teardown(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(ctx, err)
			return
		}
		c.handleMessage(conn, data)
	}
}

func (c *Client) handleReadError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		c.log.Info("conversation closed locally")
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
			c.log.Info("conversation closed by server", slog.Int("code", ce.Code))
			return
		}
		c.log.Error("conversation closed abnormally", slog.Int("code", ce.Code), slog.String("text", ce.Text))
		msg := ce.Text
		if msg == "" {
			msg = "Connection closed unexpectedly"
		}
		c.events.OnError(&voice.SessionError{Code: strconv.Itoa(ce.Code), Message: msg})
		return
	}
	c.log.Error("conversation read error", slog.String("error", err.Error()))
	c.events.OnError(fmt.Errorf("elevenlabs: read: %w", err))
}

func (c *Client) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		if c.cancel != nil {
			c.cancel()
		}
		c.conn = nil
		c.cancel = nil
	}
	if c.quiet != nil {
		c.quiet.Stop()
		c.quiet = nil
	}
	c.quietGen++
	c.speaking = false
	c.mu.Unlock()

	_ = conn.Close()
	c.stopDevices()
}

func (c *Client) handleMessage(conn *websocket.Conn, data []byte) {
	var msg incoming
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("failed to parse message", slog.String("error", err.Error()))
		return
	}

	switch msg.Type {
	case "conversation_initiation_metadata":
		if ev := msg.InitiationMetadata; ev != nil {
			c.mu.Lock()
			c.conversationID = ev.ConversationID
			c.mu.Unlock()
			c.log.Info("conversation started",
				slog.String("conversation_id", ev.ConversationID),
				slog.String("output_format", ev.AgentOutputAudioFormat))
		}
		c.events.OnConnect()

	case "audio":
		encoded := msg.Audio
		if msg.AudioEvent != nil && msg.AudioEvent.AudioBase64 != "" {
			encoded = msg.AudioEvent.AudioBase64
		}
		if encoded == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			c.log.Warn("failed to decode audio", slog.String("error", err.Error()))
			return
		}
		c.playAudio(pcm)

	case "agent_response":
		text := msg.Text
		if msg.AgentResponse != nil {
			text = msg.AgentResponse.AgentResponse
		}
		c.emitMessage(voice.SourceAI, text)

	case "agent_response_correction":
		if msg.AgentResponseCorrection != nil {
			c.emitMessage(voice.SourceAI, msg.AgentResponseCorrection.CorrectedAgentResponse)
		}

	case "user_transcript":
		text := msg.Text
		if msg.UserTranscription != nil {
			text = msg.UserTranscription.UserTranscript
		}
		c.emitMessage(voice.SourceUser, text)

	case "interruption":
		c.stopSpeaking()

	case "ping":
		eventID, delay := 0, time.Duration(0)
		if msg.PingEvent != nil {
			eventID = msg.PingEvent.EventID
			delay = time.Duration(msg.PingEvent.PingMs) * time.Millisecond
		}
		if delay <= 0 {
			c.sendPong(conn, eventID)
			break
		}
		time.AfterFunc(delay, func() { c.sendPong(conn, eventID) })

	case "error":
		code, message := msg.Code, msg.Message
		if msg.ErrorEvent != nil {
			if msg.ErrorEvent.Message != "" {
				message = msg.ErrorEvent.Message
			}
			if msg.ErrorEvent.ErrorType != "" {
				code = msg.ErrorEvent.ErrorType
			}
		}
		if message == "" {
			message = "Unknown error"
		}
		c.events.OnError(&voice.SessionError{Code: code, Message: message})

	default:
		c.log.Debug("unhandled message type", slog.String("type", msg.Type))
	}
}

// sendPong answers a ping on conn while it is still the live connection.
func (c *Client) sendPong(conn *websocket.Conn, eventID int) {
	c.mu.Lock()
	live := c.conn == conn
	c.mu.Unlock()
	if !live {
		return
	}
	if err := c.writeJSON(conn, map[string]any{"type": "pong", "event_id": eventID}); err != nil {
		c.log.Warn("failed to send pong", slog.String("error", err.Error()))
	}
}

func (c *Client) emitMessage(source voice.Source, text string) {
	if text == "" {
		return
	}
	c.events.OnMessage(voice.Message{Source: source, Text: text, Final: true, Time: time.Now()})
}

func (c *Client) playAudio(pcm []byte) {
	c.speakMu.Lock()
	c.mu.Lock()
	volume := c.volume
	if c.quiet != nil {
		c.quiet.Stop()
	}
	c.quietGen++
	gen := c.quietGen
	c.quiet = time.AfterFunc(c.cfg.QuietPeriod, func() { c.quietElapsed(gen) })
	started := !c.speaking
	c.speaking = true
	c.mu.Unlock()
	if started {
		c.events.OnSpeakingChanged(true)
	}
	c.speakMu.Unlock()

	if c.cfg.Sink == nil {
		return
	}
	if err := c.cfg.Sink.Write(audio.Gain(pcm, volume)); err != nil {
		c.log.Warn("speaker write failed", slog.String("error", err.Error()))
	}
}

// quietElapsed ends speaking unless a later chunk re-armed the timer.
func (c *Client) quietElapsed(gen uint64) {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()
	c.mu.Lock()
	if gen != c.quietGen || !c.speaking {
		c.mu.Unlock()
		return
	}
	c.speaking = false
	c.quiet = nil
	c.mu.Unlock()
	c.events.OnSpeakingChanged(false)
}

func (c *Client) stopSpeaking() {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()
	c.mu.Lock()
	c.quietGen++
	if c.quiet != nil {
		c.quiet.Stop()
		c.quiet = nil
	}
	if !c.speaking {
		c.mu.Unlock()
		return
	}
	c.speaking = false
	c.mu.Unlock()
	c.events.OnSpeakingChanged(false)
}

func (c *Client) pumpMicrophone(ctx context.Context) {
	for {
		pcm, err := c.cfg.Source.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("microphone read failed", slog.String("error", err.Error()))
			}
			return
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		chunk := map[string]string{"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm)}
		if err := c.writeJSON(conn, chunk); err != nil {
			if ctx.Err() == nil {
				c.log.Warn("send audio failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

var _ voice.SessionClient = (*Client)(nil)
