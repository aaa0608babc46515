package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
)

type SQLMessageRepository struct {
	db      *sql.DB
	dialect Dialect

	// appends are serialized so ids are handed out in commit order
	mu sync.Mutex
}

func NewSQLMessageRepository(db *sql.DB, dialect Dialect) *SQLMessageRepository {
	return &SQLMessageRepository{db: db, dialect: dialect}
}

func (r *SQLMessageRepository) Append(ctx context.Context, msg interfaces.NewMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := []interface{}{msg.IngestTimestamp, msg.Topic, msg.Payload, string(msg.Kind), msg.LockerID}

	if r.dialect == DialectPostgres {
		query := r.dialect.rebind(`
			INSERT INTO messages (ts_ingest, topic, payload, kind, locker_id)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`)
		var id int64
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to append message: %w", err)
		}
		return id, nil
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (ts_ingest, topic, payload, kind, locker_id)
		VALUES (?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	return id, nil
}

func (r *SQLMessageRepository) QueryRecent(ctx context.Context, limit int) ([]mqtmodels.Message, error) {
	query := r.dialect.rebind(`
		SELECT id, ts_ingest, topic, payload, kind, locker_id
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, interfaces.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *SQLMessageRepository) QueryByLockerAndKind(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error) {
	query := r.dialect.rebind(`
		SELECT id, ts_ingest, topic, payload, kind, locker_id
		FROM messages
		WHERE locker_id = ? AND kind = ?
		ORDER BY id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, lockerID, string(kind), interfaces.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *SQLMessageRepository) DistinctLockerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT locker_id
		FROM messages
		WHERE locker_id IS NOT NULL
		ORDER BY locker_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]mqtmodels.Message, error) {
	messages := make([]mqtmodels.Message, 0)

	for rows.Next() {
		var (
			msg      mqtmodels.Message
			kind     string
			lockerID sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.IngestTimestamp, &msg.Topic, &msg.Payload, &kind, &lockerID); err != nil {
			return nil, err
		}
		msg.Kind = mqtmodels.Kind(kind)
		msg.LockerID = nullableString(lockerID)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
