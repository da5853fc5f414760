package chat

import (
	"context"
	"sync/atomic"

	"github.com/VozVule/local-knowledge/domain/chat"
)

// adapterRef boxes an adapter so the binding can swap it with one atomic store
type adapterRef struct {
	adapter chat.ProviderAdapter
}

// ActiveAdapterBinding holds exactly one adapter reference at a time.
// The reference is replaced wholesale and never mutated in place.
type ActiveAdapterBinding struct {
	ref atomic.Pointer[adapterRef]
}

// NewActiveAdapterBinding creates a binding pointing at the initial adapter (may be nil)
func NewActiveAdapterBinding(initial chat.ProviderAdapter) *ActiveAdapterBinding {
	b := &ActiveAdapterBinding{}
	if initial != nil {
		b.ref.Store(&adapterRef{adapter: initial})
	}
	return b
}

// Load returns a consistent snapshot of the active adapter, or nil
func (b *ActiveAdapterBinding) Load() chat.ProviderAdapter {
	ref := b.ref.Load()
	if ref == nil {
		return nil
	}
	return ref.adapter
}

// Swap installs next and returns the previous adapter
func (b *ActiveAdapterBinding) Swap(next chat.ProviderAdapter) chat.ProviderAdapter {
	prev := b.ref.Swap(&adapterRef{adapter: next})
	if prev == nil {
		return nil
	}
	return prev.adapter
}

// Router dispatches every chat and embed call to the currently bound adapter
type Router struct {
	binding *ActiveAdapterBinding
}

// NewRouter creates a router over an injected binding
func NewRouter(binding *ActiveAdapterBinding) *Router {
	if binding == nil {
		binding = NewActiveAdapterBinding(nil)
	}
	return &Router{binding: binding}
}

// Chat forwards the history to the adapter that is active when the call starts.
// A concurrent Reconfigure does not affect a call already dispatched.
func (r *Router) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	reply, _, err := r.Dispatch(ctx, history)
	return reply, err
}

// Dispatch is Chat that also describes the adapter the call went to
func (r *Router) Dispatch(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, chat.Descriptor, error) {
	adapter := r.binding.Load()
	if adapter == nil {
		return chat.ChatMessage{}, chat.Descriptor{}, chat.ErrNoAdapter
	}
	desc, _ := describe(adapter)
	reply, err := adapter.Chat(ctx, history)
	return reply, desc, err
}

// Embed forwards texts to the active adapter
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	adapter := r.binding.Load()
	if adapter == nil {
		return nil, chat.ErrNoAdapter
	}
	return adapter.Embed(ctx, texts)
}

// Reconfigure replaces the active adapter and returns the one it displaced.
// Calls starting after it returns use next.
func (r *Router) Reconfigure(next chat.ProviderAdapter) chat.ProviderAdapter {
	return r.binding.Swap(next)
}

// Current describes the active adapter when it supports chat.Describer
func (r *Router) Current() (chat.Descriptor, bool) {
	return describe(r.binding.Load())
}

func describe(adapter chat.ProviderAdapter) (chat.Descriptor, bool) {
	d, ok := adapter.(chat.Describer)
	if !ok {
		return chat.Descriptor{}, false
	}
	return d.Describe(), true
}
