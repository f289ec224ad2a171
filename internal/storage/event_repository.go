package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepository handles event persistence in Postgres. Events are
// immutable except for the fill_creation_scheduled flag, which only ever
// transitions from NULL to true.
type EventRepository struct {
	db *PostgresDB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *PostgresDB) *EventRepository {
	return &EventRepository{db: db}
}

// UnscheduledEvent is the projection used by the fill creation scheduler:
// the event identifier plus the parent transaction hash needed for the
// existence check.
type UnscheduledEvent struct {
	ID              string
	TransactionHash string
}

// InsertWithinTx inserts an event as part of an enclosing database
// transaction, assigning it an identifier if it has none.
func (r *EventRepository) InsertWithinTx(ctx context.Context, tx pgx.Tx, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO events (id, transaction_hash, log_index, block_number, type, protocol_version, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID,
		strings.ToLower(event.TransactionHash),
		event.LogIndex,
		event.BlockNumber,
		string(event.Type),
		int(event.ProtocolVersion),
		[]byte(event.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s/%d: %w", event.TransactionHash, event.LogIndex, err)
	}

	return nil
}

// FindUnscheduled returns up to limit events whose fill creation has not
// been scheduled yet and whose type is one of the given fill-producing
// types. Only the identifier and transaction hash are projected.
func (r *EventRepository) FindUnscheduled(ctx context.Context, eventTypes []types.EventType, limit int) ([]UnscheduledEvent, error) {
	typeStrings := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		typeStrings[i] = string(t)
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, transaction_hash
		FROM events
		WHERE fill_creation_scheduled IS NULL
		  AND type = ANY($1)
		ORDER BY block_number
		LIMIT $2
	`, typeStrings, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find unscheduled events: %w", err)
	}
	defer rows.Close()

	var events []UnscheduledEvent
	for rows.Next() {
		var event UnscheduledEvent
		if err := rows.Scan(&event.ID, &event.TransactionHash); err != nil {
			return nil, fmt.Errorf("failed to scan unscheduled event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkFillCreationScheduled flags the given events as scheduled in a single
// bulk update. The NULL guard keeps the flag one-way even when two
// scheduler runs race on the same events.
func (r *EventRepository) MarkFillCreationScheduled(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	_, err := r.db.Pool().Exec(ctx, `
		UPDATE events
		SET fill_creation_scheduled = TRUE
		WHERE id = ANY($1) AND fill_creation_scheduled IS NULL
	`, eventIDs)
	if err != nil {
		return fmt.Errorf("failed to mark events scheduled: %w", err)
	}

	return nil
}

// GetByTransactionHash retrieves all events decoded from a transaction
func (r *EventRepository) GetByTransactionHash(ctx context.Context, hash string) ([]*models.Event, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, transaction_hash, log_index, block_number, type, protocol_version, data, fill_creation_scheduled
		FROM events
		WHERE transaction_hash = $1
		ORDER BY log_index
	`, strings.ToLower(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get events by transaction hash: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var (
		event       models.Event
		typeStr     string
		protocolVer int
		data        []byte
	)
	err := row.Scan(
		&event.ID,
		&event.TransactionHash,
		&event.LogIndex,
		&event.BlockNumber,
		&typeStr,
		&protocolVer,
		&data,
		&event.Scheduler.FillCreationScheduled,
	)
	if err != nil {
		return nil, err
	}

	event.Type = types.EventType(typeStr)
	event.ProtocolVersion = types.ProtocolVersion(protocolVer)
	event.Data = data

	return &event, nil
}
