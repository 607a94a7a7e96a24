package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"daybreak/api/internal/daykey"
)

// compositeID builds the document id convention for day-scoped records:
// {parentId}_{dayKey}. Upserts on this id are what make tick and toggle
// idempotent per calendar day.
func compositeID(parentID string, day time.Time) string {
	return parentID + "_" + daykey.Key(day)
}

//  Habits

func (s *PostgresStore) InsertHabit(ctx context.Context, userID string, habit Habit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (user_id, id, title, target_per_day, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, habit.ID, habit.Title, habit.TargetPerDay, habit.IsActive, habit.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert habit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHabit(ctx context.Context, userID, habitID string) (Habit, error) {
	var item Habit
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, target_per_day, is_active, created_at
		FROM habits WHERE user_id=$1 AND id=$2
	`, userID, habitID).Scan(&item.ID, &item.Title, &item.TargetPerDay, &item.IsActive, &item.CreatedAt)
	if err != nil {
		return Habit{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListHabits(ctx context.Context, userID string) ([]Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, target_per_day, is_active, created_at
		FROM habits
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	items := make([]Habit, 0)
	for rows.Next() {
		var item Habit
		if err := rows.Scan(&item.ID, &item.Title, &item.TargetPerDay, &item.IsActive, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetHabitActive(ctx context.Context, userID, habitID string, isActive bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE habits SET is_active=$3 WHERE user_id=$1 AND id=$2
	`, userID, habitID, isActive)
	if err != nil {
		return fmt.Errorf("set habit active: %w", err)
	}
	return nil
}

//  Daily counters

// IncrementHabitCount upserts the (habit, day) counter and bumps count by 1
// in a single server-side statement, so concurrent writers never lose an
// update. Returns the resulting count.
func (s *PostgresStore) IncrementHabitCount(ctx context.Context, userID, habitID string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO habit_logs (user_id, id, habit_id, day_key, day_start, count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (user_id, id) DO UPDATE SET count = habit_logs.count + 1
		RETURNING count
	`, userID, compositeID(habitID, day), habitID, daykey.Key(day), daykey.StartOfDay(day)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment habit count: %w", err)
	}
	return count, nil
}

// HabitCountForDay reads the stored counter for one habit and day,
// defaulting to 0 when no record exists yet.
func (s *PostgresStore) HabitCountForDay(ctx context.Context, userID, habitID string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM habit_logs WHERE user_id=$1 AND id=$2
	`, userID, compositeID(habitID, day)).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("habit count for day: %w", err)
	}
	return count, nil
}

// HabitCountsForDay returns every habit counter for the given day, keyed by
// habit id. Habits with no record that day are simply absent.
func (s *PostgresStore) HabitCountsForDay(ctx context.Context, userID string, day time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT habit_id, count FROM habit_logs
		WHERE user_id=$1 AND day_start=$2
	`, userID, daykey.StartOfDay(day))
	if err != nil {
		return nil, fmt.Errorf("habit counts for day: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var habitID string
		var count int
		if err := rows.Scan(&habitID, &count); err != nil {
			return nil, fmt.Errorf("scan habit count: %w", err)
		}
		out[habitID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit counts: %w", err)
	}
	return out, nil
}

// ListHabitLogs returns the habit's counter records with day_start in
// [from, to), newest first.
func (s *PostgresStore) ListHabitLogs(ctx context.Context, userID, habitID string, from, to time.Time) ([]HabitLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, habit_id, day_key, day_start, count
		FROM habit_logs
		WHERE user_id=$1 AND habit_id=$2 AND day_start >= $3 AND day_start < $4
		ORDER BY day_start DESC
	`, userID, habitID, daykey.StartOfDay(from), daykey.StartOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}
	defer rows.Close()

	items := make([]HabitLog, 0)
	for rows.Next() {
		var item HabitLog
		if err := rows.Scan(&item.ID, &item.HabitID, &item.DayKey, &item.DayStart, &item.Count); err != nil {
			return nil, fmt.Errorf("scan habit log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit logs: %w", err)
	}
	return items, nil
}

// HabitDayKeys returns the distinct day keys with a count of at least 1 in
// [from, to]. Used by the streak scan: any record that day counts as done.
func (s *PostgresStore) HabitDayKeys(ctx context.Context, userID, habitID string, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_key FROM habit_logs
		WHERE user_id=$1 AND habit_id=$2 AND count >= 1
			AND day_start >= $3 AND day_start <= $4
	`, userID, habitID, daykey.StartOfDay(from), daykey.StartOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("habit day keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan day key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day keys: %w", err)
	}
	return keys, nil
}
