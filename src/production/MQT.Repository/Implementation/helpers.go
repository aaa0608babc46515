package implementation

import "database/sql"

// nullableString turns a NULL column into a nil pointer
func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Message Log (append-only)
// ├── Append() - Single insert, id assigned by the store
// ├── QueryRecent() - Newest first, clamped limit
// ├── QueryByLockerAndKind() - Per-locker history
// └── DistinctLockerIDs() - Every locker ever seen

// Locker State (projection)
// ├── Upsert() - Whole-record replace keyed by locker_id
// └── Get() - ErrNotFound when never reported
