package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

const taskColumns = `id, user_id, title, description, scheduled_date, scheduled_time, estimated_duration, priority, status, tags, created_ts, updated_ts`

func (d *DB) CreateTask(ctx context.Context, create *store.Task) (*store.Task, error) {
	tags, err := json.Marshal(nonNilTags(create.Tags))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal task tags")
	}
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}

	stmt := `
		INSERT INTO daily_task (user_id, title, description, scheduled_date, scheduled_time, estimated_duration, priority, status, tags, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + taskColumns
	task, err := scanTask(d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.Title,
		create.Description,
		create.ScheduledDate,
		create.ScheduledTime,
		create.EstimatedDuration,
		create.Priority,
		create.Status,
		string(tags),
		createdTs,
		createdTs,
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create task")
	}
	return task, nil
}

func (d *DB) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.FromDate != nil {
		where, args = append(where, "scheduled_date >= ?"), append(args, *find.FromDate)
	}
	if find.ToDate != nil {
		where, args = append(where, "scheduled_date <= ?"), append(args, *find.ToDate)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, *find.Status)
	}

	query := `SELECT ` + taskColumns + ` FROM daily_task WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scheduled_date ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}
	defer rows.Close()

	var list []*store.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan task")
		}
		list = append(list, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list tasks")
	}
	return list, nil
}

func (d *DB) UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error) {
	set, args := []string{"updated_ts = ?"}, []any{update.UpdatedTs}

	if update.ScheduledTime != nil {
		set, args = append(set, "scheduled_time = ?"), append(args, *update.ScheduledTime)
	}
	if update.ScheduledDate != nil {
		set, args = append(set, "scheduled_date = ?"), append(args, *update.ScheduledDate)
	}
	if update.Status != nil {
		set, args = append(set, "status = ?"), append(args, *update.Status)
	}
	if update.Priority != nil {
		set, args = append(set, "priority = ?"), append(args, *update.Priority)
	}
	if update.Title != nil {
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	args = append(args, update.ID)

	stmt := `UPDATE daily_task SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING ` + taskColumns
	task, err := scanTask(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, wrapNoRows(err, "failed to update task")
	}
	return task, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*store.Task, error) {
	var (
		task          store.Task
		scheduledTime *string
		tags          string
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.ScheduledDate,
		&scheduledTime,
		&task.EstimatedDuration,
		&task.Priority,
		&task.Status,
		&tags,
		&task.CreatedTs,
		&task.UpdatedTs,
	); err != nil {
		return nil, err
	}
	task.ScheduledTime = scheduledTime
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &task.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal task tags")
		}
	}
	return &task, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
