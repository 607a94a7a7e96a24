package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daybreak/api/internal/daykey"
)

func (s *PostgresStore) InsertRoutine(ctx context.Context, userID string, routine Routine) error {
	days, err := json.Marshal(routine.DaysOfWeek)
	if err != nil {
		return fmt.Errorf("marshal days of week: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routines (user_id, id, title, is_active, days_of_week, time_of_day,
			reminder_hour, reminder_minute, steps_count, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, userID, routine.ID, routine.Title, routine.IsActive, days, routine.TimeOfDay,
		routine.ReminderHour, routine.ReminderMinute, routine.StepsCount, routine.Position,
		routine.CreatedAt, routine.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert routine: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoutine(ctx context.Context, userID, routineID string) (Routine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, is_active, days_of_week, time_of_day,
			reminder_hour, reminder_minute, steps_count, position, created_at, updated_at
		FROM routines WHERE user_id=$1 AND id=$2
	`, userID, routineID)
	return scanRoutine(row)
}

func (s *PostgresStore) ListRoutines(ctx context.Context, userID string) ([]Routine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, is_active, days_of_week, time_of_day,
			reminder_hour, reminder_minute, steps_count, position, created_at, updated_at
		FROM routines
		WHERE user_id=$1
		ORDER BY position, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	items := make([]Routine, 0)
	for rows.Next() {
		item, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routines: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoutine(row rowScanner) (Routine, error) {
	var item Routine
	var days []byte
	err := row.Scan(&item.ID, &item.Title, &item.IsActive, &days, &item.TimeOfDay,
		&item.ReminderHour, &item.ReminderMinute, &item.StepsCount, &item.Position,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Routine{}, err
	}
	if err := json.Unmarshal(days, &item.DaysOfWeek); err != nil {
		return Routine{}, fmt.Errorf("unmarshal days of week: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateRoutine(ctx context.Context, userID, routineID string, update RoutineUpdate) error {
	set := "updated_at=NOW()"
	args := []any{userID, routineID}
	n := 3

	add := func(column string, value any) {
		set += fmt.Sprintf(", %s=$%d", column, n)
		args = append(args, value)
		n++
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	if update.DaysOfWeek != nil {
		days, err := json.Marshal(update.DaysOfWeek)
		if err != nil {
			return fmt.Errorf("marshal days of week: %w", err)
		}
		add("days_of_week", days)
	}
	if update.TimeOfDay != nil {
		add("time_of_day", *update.TimeOfDay)
	}
	if update.ClearReminder {
		set += ", reminder_hour=NULL, reminder_minute=NULL"
	} else {
		if update.ReminderHour != nil {
			add("reminder_hour", *update.ReminderHour)
		}
		if update.ReminderMinute != nil {
			add("reminder_minute", *update.ReminderMinute)
		}
	}
	if update.Position != nil {
		add("position", *update.Position)
	}

	query := fmt.Sprintf(`UPDATE routines SET %s WHERE user_id=$1 AND id=$2`, set)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update routine: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRoutine removes the routine's steps, then the routine itself. The
// fan-out is deliberately not one transaction; day logs are left in place as
// historical record.
func (s *PostgresStore) DeleteRoutine(ctx context.Context, userID, routineID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM routine_steps WHERE user_id=$1 AND routine_id=$2
	`, userID, routineID); err != nil {
		return fmt.Errorf("delete routine steps: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM routines WHERE user_id=$1 AND id=$2
	`, userID, routineID); err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}

//  Steps

func (s *PostgresStore) InsertStep(ctx context.Context, userID string, step RoutineStep) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routine_steps (user_id, routine_id, id, title, habit_id, position, is_optional)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, step.RoutineID, step.ID, step.Title, step.HabitID, step.Position, step.IsOptional)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStep(ctx context.Context, userID, routineID, stepID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM routine_steps WHERE user_id=$1 AND routine_id=$2 AND id=$3
	`, userID, routineID, stepID)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSteps(ctx context.Context, userID, routineID string) ([]RoutineStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, routine_id, title, habit_id, position, is_optional
		FROM routine_steps
		WHERE user_id=$1 AND routine_id=$2
		ORDER BY position
	`, userID, routineID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	items := make([]RoutineStep, 0)
	for rows.Next() {
		var item RoutineStep
		if err := rows.Scan(&item.ID, &item.RoutineID, &item.Title, &item.HabitID, &item.Position, &item.IsOptional); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return items, nil
}

// BumpStepsCount atomically adjusts the routine's cached child count and
// bumps updated_at. The adjustment is a server-side increment, never a
// read-modify-write.
func (s *PostgresStore) BumpStepsCount(ctx context.Context, userID, routineID string, delta int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE routines SET steps_count = steps_count + $3, updated_at=NOW()
		WHERE user_id=$1 AND id=$2
	`, userID, routineID, delta)
	if err != nil {
		return fmt.Errorf("bump steps count: %w", err)
	}
	return nil
}

// ReorderSteps assigns each step the rank of its position in orderedIDs.
// Applied as a best-effort batch: ordering is a display concern, so a
// failure partway through is tolerated rather than wrapped in a transaction.
func (s *PostgresStore) ReorderSteps(ctx context.Context, userID, routineID string, orderedIDs []string) error {
	for idx, stepID := range orderedIDs {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE routine_steps SET position=$4
			WHERE user_id=$1 AND routine_id=$2 AND id=$3
		`, userID, routineID, stepID, idx); err != nil {
			return fmt.Errorf("reorder step %s: %w", stepID, err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE routines SET updated_at=NOW() WHERE user_id=$1 AND id=$2
	`, userID, routineID)
	if err != nil {
		return fmt.Errorf("touch routine: %w", err)
	}
	return nil
}

//  Day logs

// ToggleStep flips stepID's membership in the day's completed set. The
// routine row is locked first, then the log row; steps_total and
// is_completed are recomputed from the routine's current steps_count inside
// the same transaction, so no interleaving can observe a half-updated set or
// a total inconsistent with the set it was computed against.
func (s *PostgresStore) ToggleStep(ctx context.Context, userID, routineID, stepID string, day time.Time) (RoutineLog, error) {
	logID := compositeID(routineID, day)
	dayStart := daykey.StartOfDay(day)

	var result RoutineLog
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var stepsCount int
		err := tx.QueryRowContext(ctx, `
			SELECT steps_count FROM routines WHERE user_id=$1 AND id=$2 FOR UPDATE
		`, userID, routineID).Scan(&stepsCount)
		if err != nil {
			return err
		}

		completed, _, err := lockDayLog(ctx, tx, userID, logID)
		if err != nil {
			return err
		}

		completed = toggleMembership(completed, stepID)
		isCompleted := stepsCount > 0 && len(completed) >= stepsCount

		if err := upsertDayLog(ctx, tx, userID, logID, routineID, daykey.Key(day), dayStart, completed, stepsCount, isCompleted); err != nil {
			return err
		}

		result = RoutineLog{
			ID:               logID,
			RoutineID:        routineID,
			DayKey:           daykey.Key(day),
			DayStart:         dayStart,
			CompletedStepIDs: completed,
			StepsTotal:       stepsCount,
			IsCompleted:      isCompleted,
		}
		return nil
	})
	if err != nil {
		return RoutineLog{}, err
	}
	return result, nil
}

// RemoveStepFromDayLog pulls a deleted step out of the day's completed set
// and recomputes the cached totals from the routine's already-decremented
// steps_count. A missing log is a no-op.
func (s *PostgresStore) RemoveStepFromDayLog(ctx context.Context, userID, routineID, stepID string, day time.Time) error {
	logID := compositeID(routineID, day)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Lock order matches ToggleStep: routine first, then log.
		var stepsCount int
		err := tx.QueryRowContext(ctx, `
			SELECT steps_count FROM routines WHERE user_id=$1 AND id=$2 FOR UPDATE
		`, userID, routineID).Scan(&stepsCount)
		if err != nil {
			return err
		}

		completed, exists, err := lockDayLog(ctx, tx, userID, logID)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}

		completed = removeMembership(completed, stepID)
		isCompleted := stepsCount > 0 && len(completed) >= stepsCount

		return upsertDayLog(ctx, tx, userID, logID, routineID, daykey.Key(day), daykey.StartOfDay(day), completed, stepsCount, isCompleted)
	})
}

func lockDayLog(ctx context.Context, tx *sql.Tx, userID, logID string) (completed []string, exists bool, err error) {
	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT completed_step_ids FROM routine_logs WHERE user_id=$1 AND id=$2 FOR UPDATE
	`, userID, logID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, &completed); err != nil {
		return nil, false, fmt.Errorf("unmarshal completed steps: %w", err)
	}
	if completed == nil {
		completed = []string{}
	}
	return completed, true, nil
}

func upsertDayLog(ctx context.Context, tx *sql.Tx, userID, logID, routineID, dayKey string, dayStart time.Time, completed []string, stepsTotal int, isCompleted bool) error {
	raw, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("marshal completed steps: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO routine_logs (user_id, id, routine_id, day_key, day_start, completed_step_ids, steps_total, is_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, id) DO UPDATE SET
			completed_step_ids=EXCLUDED.completed_step_ids,
			steps_total=EXCLUDED.steps_total,
			is_completed=EXCLUDED.is_completed
	`, userID, logID, routineID, dayKey, dayStart, raw, stepsTotal, isCompleted)
	if err != nil {
		return fmt.Errorf("upsert day log: %w", err)
	}
	return nil
}

func toggleMembership(set []string, member string) []string {
	for i, v := range set {
		if v == member {
			return append(set[:i], set[i+1:]...)
		}
	}
	return append(set, member)
}

func removeMembership(set []string, member string) []string {
	for i, v := range set {
		if v == member {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

// RoutineLogsForDay returns every routine log for the given day, keyed by
// routine id.
func (s *PostgresStore) RoutineLogsForDay(ctx context.Context, userID string, day time.Time) (map[string]RoutineLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, routine_id, day_key, day_start, completed_step_ids, steps_total, is_completed
		FROM routine_logs
		WHERE user_id=$1 AND day_start=$2
	`, userID, daykey.StartOfDay(day))
	if err != nil {
		return nil, fmt.Errorf("routine logs for day: %w", err)
	}
	defer rows.Close()

	out := make(map[string]RoutineLog)
	for rows.Next() {
		var item RoutineLog
		var raw []byte
		if err := rows.Scan(&item.ID, &item.RoutineID, &item.DayKey, &item.DayStart, &raw, &item.StepsTotal, &item.IsCompleted); err != nil {
			return nil, fmt.Errorf("scan routine log: %w", err)
		}
		if err := json.Unmarshal(raw, &item.CompletedStepIDs); err != nil {
			return nil, fmt.Errorf("unmarshal completed steps: %w", err)
		}
		out[item.RoutineID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routine logs: %w", err)
	}
	return out, nil
}

// CompletedRoutineDayKeys returns the day keys in [from, to] on which the
// routine's log is marked completed. Used by the routine streak scan.
func (s *PostgresStore) CompletedRoutineDayKeys(ctx context.Context, userID, routineID string, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_key FROM routine_logs
		WHERE user_id=$1 AND routine_id=$2 AND is_completed
			AND day_start >= $3 AND day_start <= $4
	`, userID, routineID, daykey.StartOfDay(from), daykey.StartOfDay(to))
	if err != nil {
		return nil, fmt.Errorf("completed routine day keys: %w", err)
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
