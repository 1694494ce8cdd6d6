// Package audit records provisioning lifecycle events. Events land in a
// store for inspection and, when brokers are configured, stream to Kafka as
// a best-effort side channel: a broker outage never fails a provisioning run.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the provisioning service.
const (
	TypeProvisionApplied = "provision.applied"
	TypeProvisionDryRun  = "provision.dry_run"
	TypeProvisionFailed  = "provision.failed"
	TypeWorkspaceHarden  = "workspace.hardened"
)

// Event is one provisioning lifecycle record.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Site      string         `json:"site"`
	Blueprint string         `json:"blueprint"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Store is an append-only event sink.
type Store interface {
	Append(ctx context.Context, e Event) error
}

// Publisher stamps and fans events out to the store and the optional stream
// sink.
type Publisher struct {
	store Store
	sink  Sink
}

// Sink is the streaming side channel; failures are the sink's to log.
type Sink interface {
	Produce(ctx context.Context, e Event)
}

func NewPublisher(store Store, sink Sink) *Publisher {
	return &Publisher{store: store, sink: sink}
}

// Emit stamps missing identity fields and records the event.
func (p *Publisher) Emit(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if p.sink != nil {
		p.sink.Produce(ctx, e)
	}
	if p.store == nil {
		return nil
	}
	return p.store.Append(ctx, e)
}

// Memory is a Store for tests and single-process runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
