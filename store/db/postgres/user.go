package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

const userColumns = `id, username, preferences, created_ts, updated_ts`

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	preferences, err := marshalPreferences(create.Preferences)
	if err != nil {
		return nil, err
	}
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}

	fields := []string{"username", "preferences", "created_ts", "updated_ts"}
	args := []any{create.Username, preferences, createdTs, createdTs}
	if create.ID != 0 {
		fields, args = append(fields, "id"), append(args, create.ID)
	}
	placeholders := make([]string, 0, len(args))
	for i := range args {
		placeholders = append(placeholders, placeholder(i+1))
	}

	stmt := `INSERT INTO users (` + strings.Join(fields, ", ") + `) VALUES (` + strings.Join(placeholders, ", ") + `) RETURNING ` + userColumns
	user, err := scanUser(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return user, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Username != nil {
		where, args = append(where, "username = "+placeholder(len(args)+1)), append(args, *find.Username)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var list []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		list = append(list, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return list, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{"updated_ts = $1"}, []any{update.UpdatedTs}
	if update.Preferences != nil {
		preferences, err := marshalPreferences(update.Preferences)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "preferences = "+placeholder(len(args)+1)), append(args, preferences)
	}
	args = append(args, update.ID)

	stmt := `UPDATE users SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + userColumns
	user, err := scanUser(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, wrapNoRows(err, "failed to update user")
	}
	return user, nil
}

func scanUser(row scanner) (*store.User, error) {
	var (
		user        store.User
		preferences []byte
	)
	if err := row.Scan(&user.ID, &user.Username, &preferences, &user.CreatedTs, &user.UpdatedTs); err != nil {
		return nil, err
	}
	if len(preferences) > 0 && string(preferences) != "{}" {
		user.Preferences = &store.UserPreferences{}
		if err := json.Unmarshal(preferences, user.Preferences); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal user preferences")
		}
	}
	return &user, nil
}

func marshalPreferences(preferences *store.UserPreferences) (string, error) {
	if preferences == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(preferences)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal user preferences")
	}
	return string(bytes), nil
}
