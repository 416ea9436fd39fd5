package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

const taskColumns = `id, user_id, title, description, scheduled_date, scheduled_time, estimated_duration, priority, status, tags, created_ts, updated_ts`

func (d *DB) CreateTask(ctx context.Context, create *store.Task) (*store.Task, error) {
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}
	tags := create.Tags
	if tags == nil {
		tags = []string{}
	}

	stmt := `
		INSERT INTO daily_task (user_id, title, description, scheduled_date, scheduled_time, estimated_duration, priority, status, tags, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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
		pq.Array(tags),
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.FromDate != nil {
		where, args = append(where, "scheduled_date >= "+placeholder(len(args)+1)), append(args, *find.FromDate)
	}
	if find.ToDate != nil {
		where, args = append(where, "scheduled_date <= "+placeholder(len(args)+1)), append(args, *find.ToDate)
	}
	if find.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*find.Status))
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
	set, args := []string{"updated_ts = $1"}, []any{update.UpdatedTs}

	if update.ScheduledTime != nil {
		set, args = append(set, "scheduled_time = "+placeholder(len(args)+1)), append(args, *update.ScheduledTime)
	}
	if update.ScheduledDate != nil {
		set, args = append(set, "scheduled_date = "+placeholder(len(args)+1)), append(args, *update.ScheduledDate)
	}
	if update.Status != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, string(*update.Status))
	}
	if update.Priority != nil {
		set, args = append(set, "priority = "+placeholder(len(args)+1)), append(args, string(*update.Priority))
	}
	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	args = append(args, update.ID)

	stmt := `UPDATE daily_task SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + ` RETURNING ` + taskColumns
	task, err := scanTask(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, wrapNoRows(err, "failed to update task")
	}
	return task, nil
}

func scanTask(row scanner) (*store.Task, error) {
	var (
		task store.Task
		tags pq.StringArray
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.ScheduledDate,
		&task.ScheduledTime,
		&task.EstimatedDuration,
		&task.Priority,
		&task.Status,
		&tags,
		&task.CreatedTs,
		&task.UpdatedTs,
	); err != nil {
		return nil, err
	}
	task.Tags = []string(tags)
	return &task, nil
}
