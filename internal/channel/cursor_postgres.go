// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/evently/internal/platform/database/schema"
	"github.com/taibuivan/evently/internal/platform/dberr"
)

// PostgresCursorStore persists cursors in realtime.channel_cursor.
type PostgresCursorStore struct {
	db *pgxpool.Pool
}

// NewPostgresCursorStore creates a store on an existing pool.
func NewPostgresCursorStore(db *pgxpool.Pool) *PostgresCursorStore {
	return &PostgresCursorStore{db: db}
}

// Load returns every thread cursor of userID.
func (store *PostgresCursorStore) Load(ctx context.Context, userID string) (map[string]uint64, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE %s = $1
	`,
		schema.RealtimeCursor.ThreadID, schema.RealtimeCursor.LastSeq,
		schema.RealtimeCursor.Table, schema.RealtimeCursor.UserID,
	)

	rows, err := store.db.Query(ctx, query, userID)
	if err != nil {
		return nil, dberr.Wrap(err, "load_channel_cursors")
	}
	defer rows.Close()

	cursors := make(map[string]uint64)
	for rows.Next() {
		var threadID string
		var lastSeq int64
		if err := rows.Scan(&threadID, &lastSeq); err != nil {
			return nil, dberr.Wrap(err, "scan_channel_cursor")
		}
		cursors[threadID] = uint64(lastSeq)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "iterate_channel_cursors")
	}

	return cursors, nil
}

// Save upserts a cursor. A cursor never moves backwards, even when acks race.
func (store *PostgresCursorStore) Save(ctx context.Context, userID, threadID string, seq uint64) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s AS stored (%[2]s, %[3]s, %[4]s, %[5]s)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (%[2]s, %[3]s) DO UPDATE
		SET %[4]s = GREATEST(stored.%[4]s, EXCLUDED.%[4]s),
		    %[5]s = now()
	`,
		schema.RealtimeCursor.Table, schema.RealtimeCursor.UserID, schema.RealtimeCursor.ThreadID,
		schema.RealtimeCursor.LastSeq, schema.RealtimeCursor.UpdatedAt,
	)

	if _, err := store.db.Exec(ctx, query, userID, threadID, int64(seq)); err != nil {
		return dberr.Wrap(err, "save_channel_cursor")
	}
	return nil
}
