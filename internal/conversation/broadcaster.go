// ABOUTME: In-memory fan-out of message changes to interested viewers
// ABOUTME: Publishes cached messages to every subscriber of a user id

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/homebase/internal/messaging"
)

// subscriberBufferSize is the channel buffer for each subscriber
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub for message changes. Subscribers
// register for a user id and receive every message that user sends or
// receives after it has been written to the cache.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *messaging.Message // userID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *messaging.Message),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for changes to userID's messages. Returns the channel
// and a subscription id. The subscription ends when ctx is cancelled. After
// Close the returned channel is already closed.
func (b *Broadcaster) Subscribe(ctx context.Context, userID string) (<-chan *messaging.Message, string) {
	subID := uuid.New().String()
	ch := make(chan *messaging.Message, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[string]chan *messaging.Message)
	}
	b.subscribers[userID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "user_id", userID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(userID, subID)
	}()

	return ch, subID
}

// Publish delivers msg to the subscribers of both participants. Slow
// subscribers whose buffers are full miss the message.
func (b *Broadcaster) Publish(msg *messaging.Message) {
	b.publishTo(msg.SenderUserID, msg)
	b.publishTo(msg.RecipientUserID, msg)
}

func (b *Broadcaster) publishTo(userID string, msg *messaging.Message) {
	b.mu.RLock()
	subs := b.subscribers[userID]
	targets := make([]chan *messaging.Message, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber",
				"user_id", userID,
				"client_message_id", msg.ClientMessageID)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[userID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, userID)
	}

	b.logger.Debug("subscriber removed", "user_id", userID, "sub_id", subID)
}

// Subscribers returns how many subscriptions userID has
func (b *Broadcaster) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for userID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, userID)
	}
	b.logger.Debug("broadcaster closed")
}
