// Package conversation implements the clarification conversation repository:
// TTL-bounded persistence in the KV store with per-conversation
// serialization and an enforced status transition table.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/clearfreight/hscodex/internal/db"
	"github.com/clearfreight/hscodex/internal/domain"
)

var convKeyPrefix = domain.KeyPrefix + "conv:"

// kvStore is the consumer interface for conversation persistence (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// lockStripes sizes the striped lock table. Stripe collisions only cost an
// occasional wait between unrelated conversations.
const lockStripes = 64

// Repo persists conversations and serializes mutations per id. Two answer
// submissions racing on the same conversation are applied one after the
// other. The locks are striped by id hash so memory stays bounded no matter
// how many conversations pass through.
type Repo struct {
	store kvStore
	ttl   time.Duration
	locks [lockStripes]sync.Mutex
}

// New creates a conversation repository. ttl bounds how long an idle
// conversation survives in the store.
func New(store kvStore, ttl time.Duration) *Repo {
	return &Repo{store: store, ttl: ttl}
}

// Create persists a new conversation.
func (r *Repo) Create(ctx context.Context, conv domain.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation id is required")
	}
	return r.put(ctx, conv)
}

// Get fetches a conversation by id.
func (r *Repo) Get(ctx context.Context, id string) (domain.Conversation, error) {
	data, err := r.store.Get(ctx, convKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Conversation{}, domain.ErrConversationNotFound
		}
		return domain.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return conv, nil
}

// Update applies fn to the conversation under a per-id lock and persists
// the result. Status changes outside the transition table are rejected.
func (r *Repo) Update(
	ctx context.Context, id string, fn func(conv *domain.Conversation) error,
) (domain.Conversation, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	conv, err := r.Get(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}

	before := conv.Status
	if err := fn(&conv); err != nil {
		return domain.Conversation{}, err
	}

	if conv.Status != before && !before.CanTransition(conv.Status) {
		return domain.Conversation{}, domain.NewConversationStateError(id, before)
	}

	conv.UpdatedAt = time.Now().UTC()
	if err := r.put(ctx, conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r *Repo) put(ctx context.Context, conv domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	if err := r.store.SetWithTTL(ctx, convKey(conv.ID), data, r.ttl); err != nil {
		return fmt.Errorf("store conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (r *Repo) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

func convKey(id string) string {
	return convKeyPrefix + id
}
