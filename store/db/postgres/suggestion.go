package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

const suggestionColumns = `id, user_id, type, title, description, actionable, priority, context, valid_until, confidence, status, created_ts, updated_ts`

func (d *DB) CreateSuggestion(ctx context.Context, create *store.Suggestion) (*store.Suggestion, error) {
	suggestionContext := "{}"
	if create.Context != nil {
		bytes, err := json.Marshal(create.Context)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal suggestion context")
		}
		suggestionContext = string(bytes)
	}
	status := create.Status
	if status == "" {
		status = store.SuggestionStatusActive
	}

	stmt := `
		INSERT INTO suggestion (id, user_id, type, title, description, actionable, priority, context, valid_until, confidence, status, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + suggestionColumns
	suggestion, err := scanSuggestion(d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.UserID,
		string(create.Type),
		create.Title,
		create.Description,
		create.Actionable,
		string(create.Priority),
		suggestionContext,
		create.ValidUntil.UnixMilli(),
		create.Confidence,
		string(status),
		create.CreatedTs,
		create.UpdatedTs,
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create suggestion")
	}
	return suggestion, nil
}

func (d *DB) ListSuggestions(ctx context.Context, find *store.FindSuggestion) ([]*store.Suggestion, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
	}
	if find.ValidAfter != nil {
		where, args = append(where, "valid_until > "+placeholder(len(args)+1)), append(args, find.ValidAfter.UnixMilli())
	}

	query := `SELECT ` + suggestionColumns + ` FROM suggestion WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list suggestions")
	}
	defer rows.Close()

	var list []*store.Suggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan suggestion")
		}
		list = append(list, suggestion)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list suggestions")
	}
	return list, nil
}

func (d *DB) UpdateSuggestion(ctx context.Context, update *store.UpdateSuggestion) (*store.Suggestion, error) {
	where, args := []string{"id = $3", "user_id = $4"}, []any{string(update.Status), update.UpdatedTs, update.ID, update.UserID}
	if update.ExpectedStatus != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*update.ExpectedStatus))
	}

	stmt := `UPDATE suggestion SET status = $1, updated_ts = $2 WHERE ` + strings.Join(where, " AND ") + ` RETURNING ` + suggestionColumns
	suggestion, err := scanSuggestion(d.db.QueryRowContext(ctx, stmt, args...))
	if err == nil {
		return suggestion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to update suggestion")
	}

	var current string
	if err := d.db.QueryRowContext(ctx, `SELECT status FROM suggestion WHERE id = $1 AND user_id = $2`, update.ID, update.UserID).Scan(&current); err != nil {
		return nil, wrapNoRows(err, "failed to update suggestion")
	}
	return nil, errors.Wrapf(store.ErrStatusConflict, "suggestion %s is %s", update.ID, current)
}

func scanSuggestion(row scanner) (*store.Suggestion, error) {
	var (
		suggestion        store.Suggestion
		suggestionContext []byte
		validUntil        int64
	)
	if err := row.Scan(
		&suggestion.ID,
		&suggestion.UserID,
		&suggestion.Type,
		&suggestion.Title,
		&suggestion.Description,
		&suggestion.Actionable,
		&suggestion.Priority,
		&suggestionContext,
		&validUntil,
		&suggestion.Confidence,
		&suggestion.Status,
		&suggestion.CreatedTs,
		&suggestion.UpdatedTs,
	); err != nil {
		return nil, err
	}
	suggestion.ValidUntil = time.UnixMilli(validUntil)
	if len(suggestionContext) > 0 {
		if err := json.Unmarshal(suggestionContext, &suggestion.Context); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal suggestion context")
		}
	}
	return &suggestion, nil
}
