package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"rstudio-ai-chat/internal/events"
	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/openrouter"
)

// ErrEmptyMessage is returned when a chat turn carries no message text
var ErrEmptyMessage = errors.New("message is required")

// FallbackReply is substituted when the provider answers successfully
// but without usable reply text.
const FallbackReply = "I apologize, but I couldn't generate a response."

// ErrorReply is the synthetic assistant message appended when the
// upstream call fails or times out. The optimistic user message is
// never rolled back, so history stays consistent for the next turn.
const ErrorReply = "⚠️ Le service IA est momentanément indisponible. Veuillez réessayer dans quelques instants."

// ConversationStore is the persistence surface for conversations.
// Get returns (nil, nil) when the id is unknown. Delete reports
// whether the id existed.
type ConversationStore interface {
	PutConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
}

// Provider is the upstream completion dependency
type Provider interface {
	Complete(ctx context.Context, model string, messages []openrouter.Message) (string, error)
}

// UsageMeter increments a license's consumption counter
type UsageMeter interface {
	MeterUsage(ctx context.Context, key string) error
}

// TurnRequest is one inbound chat turn
type TurnRequest struct {
	Message        string
	ConversationID string
	Model          string
}

// TurnResult is the outcome of a chat turn. UpstreamFailed marks turns
// that resolved with the synthetic error reply.
type TurnResult struct {
	Message        Message
	ConversationID string
	UpstreamFailed bool
}

// Orchestrator drives a chat turn: resolve the conversation, append
// the user message, call the provider with the full history, append
// the reply, persist, and meter usage on success.
type Orchestrator struct {
	store    ConversationStore
	provider Provider
	meter    UsageMeter
	bus      *events.EventBus
	log      zerolog.Logger

	// serializes turns per conversation id so concurrent appends to
	// one conversation cannot interleave message order
	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock is a per-conversation mutex with a holder count, so the
// locks map entry can be dropped once no turn is using it.
type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrchestrator creates a chat orchestrator. bus may be nil.
func NewOrchestrator(store ConversationStore, provider Provider, meter UsageMeter, bus *events.EventBus, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		provider: provider,
		meter:    meter,
		bus:      bus,
		log:      log,
		locks:    make(map[string]*convLock),
	}
}

// Turn executes one chat turn. lic is the validated license snapshot
// attached by the auth gate, or nil for unmetered usage.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest, lic *license.License) (*TurnResult, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	// The lock must be held before the conversation is read, or two
	// concurrent turns load the same snapshot and the later persist
	// drops the earlier turn's messages.
	if req.ConversationID != "" {
		unlock := o.lockConversation(req.ConversationID)
		defer unlock()
	}

	conv, err := o.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.ConversationID == "" {
		unlock := o.lockConversation(conv.ID)
		defer unlock()
	}

	conv.Append(RoleUser, req.Message)

	history := make([]openrouter.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		history = append(history, openrouter.Message{Role: msg.Role, Content: msg.Content})
	}

	reply, upstreamErr := o.provider.Complete(ctx, model, history)

	var assistantMsg Message
	upstreamFailed := false
	switch {
	case upstreamErr == nil:
		assistantMsg = conv.Append(RoleAssistant, reply)
	case errors.Is(upstreamErr, openrouter.ErrEmptyCompletion):
		assistantMsg = conv.Append(RoleAssistant, FallbackReply)
	default:
		// Timeout and transport errors land here too. The raw provider
		// error never reaches the client.
		o.log.Warn().Err(upstreamErr).
			Str("conversation_id", conv.ID).
			Str("model", model).
			Msg("upstream call failed")
		assistantMsg = conv.Append(RoleAssistant, ErrorReply)
		upstreamFailed = true
	}

	if err := o.store.PutConversation(ctx, conv); err != nil {
		// The reply is already computed; deliver it anyway.
		o.log.Error().Err(err).
			Str("conversation_id", conv.ID).
			Msg("failed to persist conversation")
	}

	if !upstreamFailed && lic != nil {
		if err := o.meter.MeterUsage(ctx, lic.Key); err != nil {
			// Tolerated under-count: log, never block the response.
			o.log.Error().Err(err).
				Str("license_key", lic.Key).
				Msg("usage metering failed")
		} else {
			o.publish(events.EventUsageMetered, map[string]interface{}{
				"licenseKey": lic.Key,
			})
		}
	}

	eventType := events.EventChatTurnCompleted
	if upstreamFailed {
		eventType = events.EventChatTurnFailed
	}
	o.publish(eventType, map[string]interface{}{
		"conversationId": conv.ID,
		"model":          model,
		"messageCount":   len(conv.Messages),
	})

	return &TurnResult{
		Message:        assistantMsg,
		ConversationID: conv.ID,
		UpstreamFailed: upstreamFailed,
	}, nil
}

// resolveConversation loads the conversation named by the request, or
// creates one. A client-supplied id unknown to the store is treated as
// a request to create a new conversation under that id.
func (o *Orchestrator) resolveConversation(ctx context.Context, req TurnRequest) (*Conversation, error) {
	if req.ConversationID != "" {
		conv, err := o.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}

	conv := NewConversation(DeriveTitle(req.Message))
	if req.ConversationID != "" {
		conv.ID = req.ConversationID
	}
	return conv, nil
}

func (o *Orchestrator) lockConversation(id string) func() {
	o.mu.Lock()
	lock, ok := o.locks[id]
	if !ok {
		lock = &convLock{}
		o.locks[id] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, id)
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) publish(t events.EventType, data map[string]interface{}) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{Type: t, Data: data})
}
