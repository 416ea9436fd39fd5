package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

func (d *DB) CreateGoal(ctx context.Context, create *store.Goal) (*store.Goal, error) {
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}
	goal := &store.Goal{}
	stmt := `INSERT INTO goal (user_id, title, year, created_ts) VALUES (?, ?, ?, ?) RETURNING id, user_id, title, year, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UserID, create.Title, create.Year, createdTs).Scan(
		&goal.ID, &goal.UserID, &goal.Title, &goal.Year, &goal.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create goal")
	}
	return goal, nil
}

func (d *DB) ListGoals(ctx context.Context, find *store.FindGoal) ([]*store.Goal, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Year != nil {
		where, args = append(where, "year = ?"), append(args, *find.Year)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id, user_id, title, year, created_ts FROM goal WHERE `+strings.Join(where, " AND ")+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list goals")
	}
	defer rows.Close()

	var list []*store.Goal
	for rows.Next() {
		goal := &store.Goal{}
		if err := rows.Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.Year, &goal.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan goal")
		}
		list = append(list, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list goals")
	}
	return list, nil
}

func (d *DB) CreateObjective(ctx context.Context, create *store.Objective) (*store.Objective, error) {
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}
	obj := &store.Objective{}
	stmt := `
		INSERT INTO objective (goal_id, user_id, title, month, year, progress, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, goal_id, user_id, title, month, year, progress, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.GoalID, create.UserID, create.Title, create.Month, create.Year, create.Progress, createdTs).Scan(
		&obj.ID, &obj.GoalID, &obj.UserID, &obj.Title, &obj.Month, &obj.Year, &obj.Progress, &obj.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create objective")
	}
	return obj, nil
}

func (d *DB) ListObjectives(ctx context.Context, find *store.FindObjective) ([]*store.Objective, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.GoalID != nil {
		where, args = append(where, "goal_id = ?"), append(args, *find.GoalID)
	}
	if find.Month != nil {
		where, args = append(where, "month = ?"), append(args, *find.Month)
	}
	if find.Year != nil {
		where, args = append(where, "year = ?"), append(args, *find.Year)
	}

	query := `SELECT id, goal_id, user_id, title, month, year, progress, created_ts FROM objective WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list objectives")
	}
	defer rows.Close()

	var list []*store.Objective
	for rows.Next() {
		obj := &store.Objective{}
		if err := rows.Scan(&obj.ID, &obj.GoalID, &obj.UserID, &obj.Title, &obj.Month, &obj.Year, &obj.Progress, &obj.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan objective")
		}
		list = append(list, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list objectives")
	}
	return list, nil
}
