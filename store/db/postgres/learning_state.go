package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

func (d *DB) UpsertLearningState(ctx context.Context, upsert *store.LearningState) (*store.LearningState, error) {
	stmt := `
		INSERT INTO learning_state (user_id, enabled, started_ts, updated_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			started_ts = CASE WHEN EXCLUDED.started_ts = 0 THEN learning_state.started_ts ELSE EXCLUDED.started_ts END,
			updated_ts = EXCLUDED.updated_ts
		RETURNING user_id, enabled, started_ts, updated_ts`
	state := &store.LearningState{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.Enabled, upsert.StartedTs, upsert.UpdatedTs).Scan(
		&state.UserID, &state.Enabled, &state.StartedTs, &state.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert learning state")
	}
	return state, nil
}

func (d *DB) ListLearningStates(ctx context.Context, find *store.FindLearningState) ([]*store.LearningState, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Enabled != nil {
		where, args = append(where, "enabled = "+placeholder(len(args)+1)), append(args, *find.Enabled)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT user_id, enabled, started_ts, updated_ts FROM learning_state WHERE `+strings.Join(where, " AND ")+` ORDER BY user_id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list learning states")
	}
	defer rows.Close()

	var list []*store.LearningState
	for rows.Next() {
		state := &store.LearningState{}
		if err := rows.Scan(&state.UserID, &state.Enabled, &state.StartedTs, &state.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan learning state")
		}
		list = append(list, state)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list learning states")
	}
	return list, nil
}
