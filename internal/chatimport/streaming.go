package chatimport

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"memlayer/internal/memerrors"
)

// BuilderState is the snapshot returned by StreamingBuilder.State.
type BuilderState struct {
	ConversationID string
	MessageCount   int
	IsFinalized    bool
}

// StreamingBuilder assembles a NormalizedConversation incrementally from
// complete messages and partial deltas. It is single-writer: concurrent
// mutation is rejected rather than interleaved.
type StreamingBuilder struct {
	mu sync.Mutex

	conversationID string
	provider       string
	externalID     string
	title          string
	createdAt      time.Time

	messages []NormalizedMessage

	pending       *NormalizedMessage // message under construction via partial deltas
	finalized     bool
	finalizedConv *NormalizedConversation
}

// NewStreamingBuilder starts a new builder for a conversation under the
// given provider.
func NewStreamingBuilder(provider string) *StreamingBuilder {
	return &StreamingBuilder{
		conversationID: uuid.NewString(),
		provider:       provider,
		createdAt:      time.Now().UTC(),
	}
}

// WithExternalID sets the provider's external conversation id before any
// message is added.
func (b *StreamingBuilder) WithExternalID(externalID string) *StreamingBuilder {
	b.externalID = externalID
	return b
}

// WithTitle sets the conversation title before any message is added.
func (b *StreamingBuilder) WithTitle(title string) *StreamingBuilder {
	b.title = title
	return b
}

// lock enforces single-writer access: a second goroutine calling any mutating
// method while one is already in flight is rejected rather than queued.
func (b *StreamingBuilder) lock() error {
	if !b.mu.TryLock() {
		return memerrors.New(memerrors.KindValidation, "streaming builder: concurrent mutation rejected")
	}
	return nil
}

func (b *StreamingBuilder) unlock() {
	b.mu.Unlock()
}

// AddMessage appends a complete message with a generated id and created_at=now.
func (b *StreamingBuilder) AddMessage(role Role, content string) (NormalizedMessage, error) {
	if err := b.lock(); err != nil {
		return NormalizedMessage{}, err
	}
	defer b.unlock()

	if b.finalized {
		return NormalizedMessage{}, memerrors.New(memerrors.KindValidation, "builder_finalized")
	}
	if b.pending != nil {
		b.messages = append(b.messages, *b.pending)
		b.pending = nil
	}

	msg := NormalizedMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	b.messages = append(b.messages, msg)
	return msg, nil
}

// AddPartialMessageDelta appends content to the message under construction,
// starting one if none is pending. Deltas are append-only: each call extends
// the pending message's content monotonically.
func (b *StreamingBuilder) AddPartialMessageDelta(role Role, contentChunk string) (string, error) {
	if err := b.lock(); err != nil {
		return "", err
	}
	defer b.unlock()

	if b.finalized {
		return "", memerrors.New(memerrors.KindValidation, "builder_finalized")
	}

	if b.pending == nil {
		b.pending = &NormalizedMessage{
			ID:        uuid.NewString(),
			Role:      role,
			CreatedAt: time.Now().UTC(),
		}
	}
	b.pending.Content += contentChunk
	return b.pending.ID, nil
}

// Finalize closes any pending message and returns the completed conversation.
// Subsequent calls return the same snapshot without mutating state further.
func (b *StreamingBuilder) Finalize(rawMetadata map[string]any) (NormalizedConversation, error) {
	if err := b.lock(); err != nil {
		return NormalizedConversation{}, err
	}
	defer b.unlock()

	if b.finalized {
		return *b.finalizedConv, nil
	}

	if b.pending != nil {
		b.messages = append(b.messages, *b.pending)
		b.pending = nil
	}
	if len(b.messages) == 0 {
		return NormalizedConversation{}, memerrors.New(memerrors.KindValidation, "cannot finalize a conversation with no messages")
	}

	now := time.Now().UTC()
	conv := NormalizedConversation{
		ID:          b.conversationID,
		Provider:    b.provider,
		ExternalID:  b.externalID,
		Title:       b.title,
		CreatedAt:   b.createdAt,
		UpdatedAt:   now,
		Messages:    b.messages,
		RawMetadata: rawMetadata,
	}
	b.finalized = true
	b.finalizedConv = &conv
	return conv, nil
}

// State returns a snapshot of the builder's progress.
func (b *StreamingBuilder) State() BuilderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(b.messages)
	if b.pending != nil {
		count++
	}
	return BuilderState{
		ConversationID: b.conversationID,
		MessageCount:   count,
		IsFinalized:    b.finalized,
	}
}
