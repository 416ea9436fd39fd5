package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/rhythm/store"
)

func (d *DB) CreateBehaviorInsight(ctx context.Context, create *store.BehaviorInsight) (*store.BehaviorInsight, error) {
	createdTs := create.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}
	data := string(create.Data)
	if data == "" {
		data = "{}"
	}

	insight := &store.BehaviorInsight{}
	var raw string
	stmt := `
		INSERT INTO behavior_insight (user_id, insight_type, data, confidence, created_ts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, user_id, insight_type, data, confidence, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, create.UserID, create.InsightType, data, create.Confidence, createdTs).Scan(
		&insight.ID, &insight.UserID, &insight.InsightType, &raw, &insight.Confidence, &insight.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create behavior insight")
	}
	insight.Data = []byte(raw)
	return insight, nil
}

func (d *DB) ListBehaviorInsights(ctx context.Context, find *store.FindBehaviorInsight) ([]*store.BehaviorInsight, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if len(find.Types) > 0 {
		placeholders := make([]string, 0, len(find.Types))
		for _, t := range find.Types {
			placeholders, args = append(placeholders, "?"), append(args, t)
		}
		where = append(where, fmt.Sprintf("insight_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_ts >= ?"), append(args, *find.CreatedAfter)
	}
	if find.PayloadType != nil {
		where, args = append(where, "json_extract(data, '$.type') = ?"), append(args, *find.PayloadType)
	}

	query := `SELECT id, user_id, insight_type, data, confidence, created_ts FROM behavior_insight WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, find.Limit)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list behavior insights")
	}
	defer rows.Close()

	var list []*store.BehaviorInsight
	for rows.Next() {
		insight := &store.BehaviorInsight{}
		var raw string
		if err := rows.Scan(&insight.ID, &insight.UserID, &insight.InsightType, &raw, &insight.Confidence, &insight.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan behavior insight")
		}
		insight.Data = []byte(raw)
		list = append(list, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list behavior insights")
	}
	return list, nil
}
