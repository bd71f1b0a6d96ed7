// Package widget serves the avatar to browser pages over a WebSocket. Each
// connection is one page session.
package widget

import (
	"encoding/json"
)

// Message types sent by the page.
const (
	TypeFocus        = "page.focus"
	TypeInput        = "page.input"
	TypeActivity     = "page.activity"
	TypePointerLeave = "page.pointer_leave"
	TypeUnload       = "page.unload"
	TypeModelLoaded  = "page.model_loaded"
	TypeModelFailed  = "page.model_failed"

	TypeChatSend    = "chat.send"
	TypeChatHistory = "chat.history"

	TypeVoiceStart        = "voice.start"
	TypeVoiceStop         = "voice.stop"
	TypeVoiceCancel       = "voice.cancel"
	TypeVoiceAsk          = "voice.ask"
	TypeVoiceSpeak        = "voice.speak"
	TypeVoiceSpeakWelcome = "voice.speak_welcome"
	TypeVoiceStatus       = "voice.status"
	TypeVoiceSetVoice     = "voice.set_voice"

	TypeAudioEnded = "audio.ended"
	TypeFrames     = "avatar.frames"
)

// Message types sent to the page. Bus events are forwarded under their own
// type names.
const (
	TypeReady      = "session.ready"
	TypeReply      = "reply"
	TypeAudioPlay  = "audio.play"
	TypeAudioStop  = "audio.stop"
	TypeAudioLevel = "audio.volume"
	TypeFrame      = "avatar.frame"
)

// Inbound is a message from the page. ID, when set, is echoed in the reply.
type Inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a message to the page.
type Outbound struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type pointerPayload struct {
	ClientY float64 `json:"clientY"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

type chatPayload struct {
	Question string `json:"question"`
}

// recordingPayload carries a base64 recording; encoding/json decodes it
// into Audio.
type recordingPayload struct {
	Audio    []byte `json:"audio"`
	Format   string `json:"format,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type speakPayload struct {
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

type voicePayload struct {
	Voice string `json:"voice"`
}

type audioEndedPayload struct {
	ID string `json:"id"`
}

type framesPayload struct {
	Enabled bool `json:"enabled"`
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
