package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// EventLog records what happened to stored bundles (generated, verified,
// exported) with a per-bundle sequence.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide the bundle audit trail.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// Append records an event. payload is marshalled to JSON when not nil.
func (el *EventLog) Append(ctx context.Context, bundleID, eventType string, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		raw = data
	}
	event := &Event{BundleID: bundleID, Type: eventType, Payload: raw}
	if err := el.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// AppendEvent appends an event with a monotonically increasing per-bundle
// sequence, assigning event.Sequence and event.Timestamp.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	if event.BundleID == "" || event.Type == "" {
		return schema.NewError(schema.ErrCodeStore, "event bundle id and type are required")
	}
	db := el.store.DB()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM bundle_events WHERE bundle_id = ?`, event.BundleID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bundle_events (bundle_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?)`,
		event.BundleID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// Events returns the events of a bundle ordered by sequence. Sequence gaps
// are reported as a store error.
func (el *EventLog) Events(ctx context.Context, bundleID string) ([]*Event, error) {
	events, err := el.store.listEvents(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in bundle %s: expected %d, got %d", bundleID, expected, e.Sequence)
		}
	}
	return events, nil
}
