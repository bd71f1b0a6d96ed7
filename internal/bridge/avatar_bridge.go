// Package bridge provides Wails bindings between Go and frontend
package bridge

import (
	"context"

	"github.com/normanking/consultavatar/internal/animation"
	"github.com/normanking/consultavatar/internal/avatar"
	"github.com/normanking/consultavatar/internal/bus"
	"github.com/normanking/consultavatar/internal/page"
)

// Emitter sends a named event to the frontend. The app passes
// runtime.EventsEmit.
type Emitter func(ctx context.Context, eventName string, optionalData ...interface{})

// AvatarBridge exposes the avatar and the page signals to the frontend
type AvatarBridge struct {
	ctx  context.Context
	page *page.Session
	emit Emitter
}

// NewAvatarBridge creates the avatar bridge
func NewAvatarBridge(p *page.Session, emit Emitter) *AvatarBridge {
	return &AvatarBridge{
		page: p,
		emit: emit,
	}
}

// Bind sets the Wails runtime context
func (b *AvatarBridge) Bind(ctx context.Context) {
	b.ctx = ctx

	b.page.Bus().Subscribe(bus.EventTypeAvatarStateChanged, func(e bus.Event) {
		b.emit(b.ctx, "avatar:stateChanged", e.Data)
	})
	b.page.Bus().Subscribe(bus.EventTypeModelLoaded, func(e bus.Event) {
		b.emit(b.ctx, "avatar:modelLoaded", e.Data)
	})
}

// GetState returns the avatar session
func (b *AvatarBridge) GetState() (avatar.Session, error) {
	return b.page.Snapshot(b.ctx)
}

// GetPlacement returns the scene framing for the model
func (b *AvatarBridge) GetPlacement() animation.Placement {
	return b.page.Placement()
}

// GetClips returns the clip the frontend plays for each state
func (b *AvatarBridge) GetClips() []animation.Clip {
	return b.page.Clips()
}

// ModelLoaded is called once the frontend has the model in the scene
func (b *AvatarBridge) ModelLoaded() error {
	return b.page.ModelLoaded()
}

// ModelFailed is called when the frontend could not load the model
func (b *AvatarBridge) ModelFailed(reason string) {
	b.page.ModelFailed(reason)
}

// Focus reports the chat input gaining focus
func (b *AvatarBridge) Focus() { b.page.Focus() }

// Input reports typing in the chat input
func (b *AvatarBridge) Input() { b.page.Input() }

// Activity reports mouse, key or click activity
func (b *AvatarBridge) Activity() { b.page.Activity() }

// PointerLeave reports the pointer leaving the window
func (b *AvatarBridge) PointerLeave(clientY float64) { b.page.PointerLeave(clientY) }

// Unload reports the window closing
func (b *AvatarBridge) Unload() { b.page.Unload() }
