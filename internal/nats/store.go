package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/store"
)

const (
	// StreamName is the name of the conversation-turns stream.
	StreamName = "TURNS"

	// SubjectPrefix is the prefix for all turn subjects.
	SubjectPrefix = "turn"

	// TenantBucket is the KV bucket holding tenant records.
	TenantBucket = "tenants"

	// KnowledgeBucket is the KV bucket holding knowledge entries, keyed
	// tenantID.entryID.
	KnowledgeBucket = "knowledge"
)

// Store is the JetStream-backed implementation of store.TenantStore:
// turns go to a stream, tenant and knowledge records to KV buckets.
type Store struct {
	client    *Client
	tenants   jetstream.KeyValue
	knowledge jetstream.KeyValue
}

// NewStore creates the store, provisioning the stream and buckets when
// absent.
func NewStore(ctx context.Context, client *Client) (*Store, error) {
	js := client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      90 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Description: "All conversation turns",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	tenants, err := ensureBucket(ctx, js, TenantBucket)
	if err != nil {
		return nil, err
	}
	knowledge, err := ensureBucket(ctx, js, KnowledgeBucket)
	if err != nil {
		return nil, err
	}

	return &Store{client: client, tenants: tenants, knowledge: knowledge}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return kv, nil
}

// TurnSubject returns the subject for a turn.
func TurnSubject(tenantID, userID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, tenantID, userID, role)
}

// GetTenant reads a tenant record by id.
func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	entry, err := s.tenants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read tenant: %w", err)
	}

	var t model.Tenant
	if err := json.Unmarshal(entry.Value(), &t); err != nil {
		return nil, fmt.Errorf("failed to decode tenant: %w", err)
	}
	return &t, nil
}

// PutTenant writes a tenant record.
func (s *Store) PutTenant(ctx context.Context, t *model.Tenant) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant: %w", err)
	}
	if _, err := s.tenants.Put(ctx, t.ID, data); err != nil {
		return fmt.Errorf("failed to write tenant: %w", err)
	}
	return nil
}

// Knowledge reads all knowledge entries for a tenant.
func (s *Store) Knowledge(ctx context.Context, tenantID string) ([]model.KnowledgeEntry, error) {
	lister, err := s.knowledge.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge keys: %w", err)
	}

	prefix := tenantID + "."
	var entries []model.KnowledgeEntry
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		kvEntry, err := s.knowledge.Get(ctx, key)
		if err != nil {
			continue
		}
		var e model.KnowledgeEntry
		if err := json.Unmarshal(kvEntry.Value(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// PutKnowledge writes one knowledge entry.
func (s *Store) PutKnowledge(ctx context.Context, e *model.KnowledgeEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge entry: %w", err)
	}
	key := fmt.Sprintf("%s.%s", e.TenantID, e.ID)
	if _, err := s.knowledge.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write knowledge entry: %w", err)
	}
	return nil
}

// AppendTurn appends one conversation turn to the stream.
func (s *Store) AppendTurn(ctx context.Context, turn *model.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	subject := TurnSubject(turn.TenantID, turn.UserID, turn.Role)
	if _, err := s.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	return nil
}

// RecentTurns reads the last limit turns for a (tenant, user) pair,
// ordered newest-first.
func (s *Store) RecentTurns(ctx context.Context, tenantID, userID string, limit int) ([]model.Turn, error) {
	js := s.client.JetStream()

	filterSubject := fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, tenantID, userID)
	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	// Fetch everything for the pair, keep the tail. Conversations here
	// are short-lived customer chats, not unbounded feeds.
	const fetchCap = 500
	batch, err := consumer.FetchNoWait(fetchCap)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}

	var turns []model.Turn
	for msg := range batch.Messages() {
		var turn model.Turn
		if err := json.Unmarshal(msg.Data(), &turn); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			turn.Sequence = meta.Sequence.Stream
		}
		turns = append(turns, turn)
	}
	if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", batch.Error())
	}

	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	// Newest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
