package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across habits and routines using
// plainto_tsquery and ts_rank, with ts_headline for snippets. The fts
// columns are generated with the 'simple' configuration, so the query side
// must use it too.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.UserID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultHabit {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'habit'::text AS type, h.id, h.title,
				ts_headline('simple', h.title, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS time_of_day, h.is_active,
				ts_rank(h.fts, %s) AS rank
			FROM habits h
			WHERE h.user_id = $2 AND h.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultRoutine {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'routine'::text AS type, r.id, r.title,
				ts_headline('simple', r.title, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.time_of_day, r.is_active,
				ts_rank(r.fts, %s) AS rank
			FROM routines r
			WHERE r.user_id = $2 AND r.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, time_of_day, is_active
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TimeOfDay, &r.IsActive); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]HabitRecord, []RoutineRecord, error) {
	habitRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, is_active
		FROM habits
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load habits: %w", err)
	}
	defer habitRows.Close()

	habits := make([]HabitRecord, 0)
	for habitRows.Next() {
		var h HabitRecord
		if err := habitRows.Scan(&h.ID, &h.UserID, &h.Title, &h.IsActive); err != nil {
			return nil, nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := habitRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate habits: %w", err)
	}

	routineRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, time_of_day, is_active
		FROM routines
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load routines: %w", err)
	}
	defer routineRows.Close()

	routines := make([]RoutineRecord, 0)
	for routineRows.Next() {
		var r RoutineRecord
		if err := routineRows.Scan(&r.ID, &r.UserID, &r.Title, &r.TimeOfDay, &r.IsActive); err != nil {
			return nil, nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, r)
	}
	if err := routineRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate routines: %w", err)
	}

	return habits, routines, nil
}
