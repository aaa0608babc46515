package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour of a database/sql backed repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS messages (
			` + idColumn + `,
			ts_ingest  BIGINT NOT NULL,
			topic      TEXT   NOT NULL,
			payload    TEXT   NOT NULL,
			kind       TEXT   NOT NULL,
			locker_id  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages (ts_ingest)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages (topic)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_locker ON messages (locker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_locker_kind ON messages (locker_id, kind, id)`,
		`CREATE TABLE IF NOT EXISTS locker_state (
			locker_id    TEXT   PRIMARY KEY,
			ts_update    BIGINT NOT NULL,
			door         TEXT,
			relay        TEXT,
			raw_payload  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_state_ts ON locker_state (ts_update)`,
	}
}

// CreateSchema creates the message log and state tables if missing.
func CreateSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, query := range d.schema() {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}
