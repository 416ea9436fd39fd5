package sqlite

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
	suggestionContext, err := marshalContext(create.Context)
	if err != nil {
		return nil, err
	}
	status := create.Status
	if status == "" {
		status = store.SuggestionStatusActive
	}

	stmt := `
		INSERT INTO suggestion (id, user_id, type, title, description, actionable, priority, context, valid_until, confidence, status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + suggestionColumns
	suggestion, err := scanSuggestion(d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.UserID,
		create.Type,
		create.Title,
		create.Description,
		create.Actionable,
		create.Priority,
		suggestionContext,
		create.ValidUntil.UnixMilli(),
		create.Confidence,
		status,
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
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}
	if find.ValidAfter != nil {
		where, args = append(where, "valid_until > ?"), append(args, find.ValidAfter.UnixMilli())
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
	where, args := []string{"id = ?", "user_id = ?"}, []any{update.Status, update.UpdatedTs, update.ID, update.UserID}
	if update.ExpectedStatus != nil {
		where, args = append(where, "status = ?"), append(args, *update.ExpectedStatus)
	}

	stmt := `UPDATE suggestion SET status = ?, updated_ts = ? WHERE ` + strings.Join(where, " AND ") + ` RETURNING ` + suggestionColumns
	suggestion, err := scanSuggestion(d.db.QueryRowContext(ctx, stmt, args...))
	if err == nil {
		return suggestion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to update suggestion")
	}

	// Nothing matched: tell a missing row apart from a status mismatch.
	var current store.SuggestionStatus
	if err := d.db.QueryRowContext(ctx, `SELECT status FROM suggestion WHERE id = ? AND user_id = ?`, update.ID, update.UserID).Scan(&current); err != nil {
		return nil, wrapNoRows(err, "failed to update suggestion")
	}
	return nil, errors.Wrapf(store.ErrStatusConflict, "suggestion %s is %s", update.ID, current)
}

func scanSuggestion(row scanner) (*store.Suggestion, error) {
	var (
		suggestion        store.Suggestion
		suggestionContext string
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
	if suggestionContext != "" {
		if err := json.Unmarshal([]byte(suggestionContext), &suggestion.Context); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal suggestion context")
		}
	}
	return &suggestion, nil
}

func marshalContext(suggestionContext map[string]any) (string, error) {
	if suggestionContext == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(suggestionContext)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal suggestion context")
	}
	return string(bytes), nil
}
