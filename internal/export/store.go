package export

import (
	"context"
	"time"

	"daybreak/api/internal/store"
)

// PostgresData adapts the Postgres store to the report's DataStore.
type PostgresData struct {
	store *store.PostgresStore
}

func NewPostgresData(s *store.PostgresStore) *PostgresData {
	return &PostgresData{store: s}
}

func (p *PostgresData) ListHabits(ctx context.Context, userID string) ([]HabitInfo, error) {
	habits, err := p.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	infos := make([]HabitInfo, 0, len(habits))
	for _, habit := range habits {
		infos = append(infos, HabitInfo{
			ID:           habit.ID,
			Title:        habit.Title,
			TargetPerDay: habit.TargetPerDay,
		})
	}
	return infos, nil
}

func (p *PostgresData) HabitLogs(ctx context.Context, userID, habitID string, from, to time.Time) ([]LogInfo, error) {
	logs, err := p.store.ListHabitLogs(ctx, userID, habitID, from, to)
	if err != nil {
		return nil, err
	}
	infos := make([]LogInfo, 0, len(logs))
	for _, entry := range logs {
		infos = append(infos, LogInfo{DayKey: entry.DayKey, Count: entry.Count})
	}
	return infos, nil
}

func (p *PostgresData) ListRoutines(ctx context.Context, userID string) ([]RoutineInfo, error) {
	routines, err := p.store.ListRoutines(ctx, userID)
	if err != nil {
		return nil, err
	}
	infos := make([]RoutineInfo, 0, len(routines))
	for _, routine := range routines {
		infos = append(infos, RoutineInfo{
			ID:         routine.ID,
			Title:      routine.Title,
			StepsCount: routine.StepsCount,
		})
	}
	return infos, nil
}

func (p *PostgresData) CompletedRoutineDays(ctx context.Context, userID, routineID string, from, to time.Time) (int, error) {
	keys, err := p.store.CompletedRoutineDayKeys(ctx, userID, routineID, from, to)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
