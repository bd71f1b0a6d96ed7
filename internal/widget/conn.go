package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/metrics"
	"github.com/normanking/consultavatar/internal/page"
	"github.com/normanking/consultavatar/internal/tts"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// recordings arrive base64 encoded inside a JSON message
	maxMessageSize = 16 << 20
)

var errUnknownType = errors.New("unknown message type")

// forwarded are the bus events the page receives.
var forwarded = []bus.EventType{
	bus.EventTypeAvatarStateChanged,
	bus.EventTypeMessageAppended,
	bus.EventTypeTyping,
	bus.EventTypeChatError,
	bus.EventTypeModelLoaded,
	bus.EventTypeRecordingStarted,
	bus.EventTypeRecordingStopped,
	bus.EventTypeTranscript,
	bus.EventTypeSpeakingStarted,
	bus.EventTypeSpeakingStopped,
	bus.EventTypeAlert,
}

// conn is one page connected over a WebSocket.
type conn struct {
	ws     *websocket.Conn
	page   *page.Session
	player *PagePlayer
	send   chan []byte
	frames atomic.Bool
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(ctx context.Context, ws *websocket.Conn, deps page.Deps, opts page.Options, sendBuffer int, logger zerolog.Logger) *conn {
	c := &conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.player = NewPagePlayer(c.emit)

	opts.Presenter = c
	c.page = page.New(deps, opts, c.player, logger)
	c.logger = logger.With().
		Str("component", "widget").
		Str("session", c.page.ID().String()).
		Str("remote", ws.RemoteAddr().String()).
		Logger()

	c.page.Bus().SubscribeMultiple(forwarded, func(e bus.Event) {
		c.emit(Outbound{Type: string(e.Type), Data: e.Data})
	})
	return c
}

// serve runs the connection until either side closes it.
func (c *conn) serve() {
	c.logger.Info().Msg("Page connected")

	go c.writePump()
	c.emit(Outbound{Type: TypeReady, Data: map[string]any{
		"session":   c.page.ID().String(),
		"placement": c.page.Placement(),
		"clips":     c.page.Clips(),
	}})
	go c.page.Run(c.ctx)

	c.readPump()

	c.cancel()
	c.player.Close()
	<-c.page.Runtime().Done()
	c.logger.Info().Msg("Page disconnected")
}

// emit queues out for the page. It never blocks: when the send buffer is
// full the message is dropped.
func (c *conn) emit(out Outbound) bool {
	if c.ctx.Err() != nil {
		return false
	}
	data, err := json.Marshal(out)
	if err != nil {
		c.logger.Error().Err(err).Str("type", out.Type).Msg("Failed to encode message")
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		metrics.WidgetDropped.Inc()
		return false
	}
}

// Present forwards mix loop frames when the page asked for them.
func (c *conn) Present(frame animation.Frame) {
	if c.frames.Load() {
		c.emit(Outbound{Type: TypeFrame, Data: frame})
	}
}

func (c *conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Connection lost")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.emit(Outbound{Type: TypeReply, Error: "invalid message: " + err.Error()})
			continue
		}
		if err := c.handle(in); err != nil {
			c.reply(in, nil, err)
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed")
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handle dispatches one page message. Page signals are applied in order on
// the read goroutine; requests that wait on the backend run on their own
// goroutine and answer with a reply.
func (c *conn) handle(in Inbound) error {
	label := in.Type
	defer func() { metrics.WidgetMessages.WithLabelValues(label).Inc() }()

	switch in.Type {
	case TypeFocus:
		c.page.Focus()
	case TypeInput:
		c.page.Input()
	case TypeActivity:
		c.page.Activity()
	case TypeUnload:
		c.page.Unload()
	case TypePointerLeave:
		var p pointerPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.page.PointerLeave(p.ClientY)

	case TypeModelLoaded:
		c.reply(in, nil, c.page.ModelLoaded())
	case TypeModelFailed:
		var p reasonPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.page.ModelFailed(p.Reason)

	case TypeChatHistory:
		c.reply(in, c.page.Chat().History().Messages(), nil)
	case TypeChatSend:
		var p chatPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.async(in, func(ctx context.Context) (any, error) {
			return c.page.Chat().Send(ctx, p.Question)
		})

	case TypeVoiceStart:
		c.reply(in, nil, c.page.Voice().StartRecording())
	case TypeVoiceCancel:
		c.page.Voice().CancelRecording()
		c.reply(in, nil, nil)
	case TypeVoiceStop:
		var p recordingPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.async(in, func(ctx context.Context) (any, error) {
			return c.page.Voice().StopRecording(ctx, p.Audio, p.Format)
		})
	case TypeVoiceAsk:
		var p recordingPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.async(in, func(ctx context.Context) (any, error) {
			return c.page.Voice().AskByVoice(ctx, p.Audio, p.Filename)
		})
	case TypeVoiceSpeak:
		var p speakPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.async(in, func(ctx context.Context) (any, error) {
			if p.MessageID != "" {
				return nil, c.page.Voice().SpeakMessage(ctx, p.MessageID)
			}
			return nil, c.page.Voice().Speak(ctx, p.Text)
		})
	case TypeVoiceSpeakWelcome:
		c.async(in, func(ctx context.Context) (any, error) {
			return nil, c.page.Voice().SpeakWelcome(ctx)
		})
	case TypeVoiceStatus:
		c.async(in, func(ctx context.Context) (any, error) {
			return c.page.Voice().Status(ctx)
		})
	case TypeVoiceSetVoice:
		var p voicePayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		id, err := tts.ResolveVoice(p.Voice)
		if err != nil {
			return err
		}
		c.page.Voice().SetVoice(id)
		c.reply(in, map[string]any{"voice": id}, nil)

	case TypeAudioEnded:
		var p audioEndedPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.player.Ended(p.ID)
	case TypeFrames:
		var p framesPayload
		if err := decode(in.Payload, &p); err != nil {
			return err
		}
		c.frames.Store(p.Enabled)

	default:
		label = "unknown"
		return fmt.Errorf("%w: %q", errUnknownType, in.Type)
	}
	return nil
}

func (c *conn) async(in Inbound, fn func(context.Context) (any, error)) {
	go func() {
		data, err := fn(c.ctx)
		c.reply(in, data, err)
	}()
}

// reply answers a request. Messages without an ID only get a reply when
// they fail.
func (c *conn) reply(in Inbound, data any, err error) {
	if in.ID == "" && err == nil {
		return
	}
	out := Outbound{Type: TypeReply, ID: in.ID, Data: data}
	if err != nil {
		out.Data = nil
		out.Error = err.Error()
		c.logger.Debug().Err(err).Str("type", in.Type).Msg("Request failed")
	}
	c.emit(out)
}
