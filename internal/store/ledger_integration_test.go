package store

import (
	"context"
	"os"
	"testing"
	"time"

	"daybreak/api/internal/daykey"
	"daybreak/api/internal/util"
)

// setupIntegrationStore opens a PostgresStore against TEST_DATABASE_URL,
// applying migrations first. Tests using it skip when the variable is unset
// so the default test run needs no database.
func setupIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func seedTestUser(t *testing.T, s *PostgresStore) string {
	t.Helper()
	userID := util.NewID("usr")
	err := s.CreateUser(context.Background(), User{
		ID:           userID,
		Email:        userID + "@test.local",
		DisplayName:  "Integration Tester",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return userID
}

func TestIncrementHabitCountAccumulates(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	habit := Habit{ID: util.NewID("hab"), Title: "Drink water", TargetPerDay: 8, IsActive: true, CreatedAt: time.Now()}
	if err := s.InsertHabit(ctx, userID, habit); err != nil {
		t.Fatalf("insert habit: %v", err)
	}

	day := time.Now()
	for want := 1; want <= 3; want++ {
		got, err := s.IncrementHabitCount(ctx, userID, habit.ID, day)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("count after increment = %d, want %d", got, want)
		}
	}

	count, err := s.HabitCountForDay(ctx, userID, habit.ID, day)
	if err != nil {
		t.Fatalf("count for day: %v", err)
	}
	if count != 3 {
		t.Fatalf("count for day = %d, want 3", count)
	}
}

func TestHabitCountForDayMissingLogIsZero(t *testing.T) {
	s := setupIntegrationStore(t)
	userID := seedTestUser(t, s)

	count, err := s.HabitCountForDay(context.Background(), userID, "hab_never_ticked", time.Now())
	if err != nil {
		t.Fatalf("count for day: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestToggleStepIsAnInvolution(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	routine := Routine{
		ID: util.NewID("rtn"), Title: "Morning", IsActive: true,
		DaysOfWeek: []int{1, 2, 3, 4, 5, 6, 7}, TimeOfDay: "morning",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.InsertRoutine(ctx, userID, routine); err != nil {
		t.Fatalf("insert routine: %v", err)
	}
	step := RoutineStep{ID: util.NewID("stp"), RoutineID: routine.ID, Title: "Stretch"}
	if err := s.InsertStep(ctx, userID, step); err != nil {
		t.Fatalf("insert step: %v", err)
	}
	if err := s.BumpStepsCount(ctx, userID, routine.ID, 1); err != nil {
		t.Fatalf("bump: %v", err)
	}

	day := time.Now()
	log, err := s.ToggleStep(ctx, userID, routine.ID, step.ID, day)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if len(log.CompletedStepIDs) != 1 || log.CompletedStepIDs[0] != step.ID {
		t.Fatalf("completed = %v, want [%s]", log.CompletedStepIDs, step.ID)
	}
	if !log.IsCompleted {
		t.Fatal("single-step routine should be completed after its step is done")
	}

	log, err = s.ToggleStep(ctx, userID, routine.ID, step.ID, day)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if len(log.CompletedStepIDs) != 0 {
		t.Fatalf("completed = %v, want empty after second toggle", log.CompletedStepIDs)
	}
	if log.IsCompleted {
		t.Fatal("routine should not be completed after the step is untoggled")
	}
}

func TestToggleStepCompletionTracksStepsCount(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	routine := Routine{
		ID: util.NewID("rtn"), Title: "Evening", IsActive: true,
		DaysOfWeek: []int{1, 2, 3, 4, 5, 6, 7}, TimeOfDay: "evening",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.InsertRoutine(ctx, userID, routine); err != nil {
		t.Fatalf("insert routine: %v", err)
	}
	steps := make([]RoutineStep, 3)
	for i := range steps {
		steps[i] = RoutineStep{ID: util.NewID("stp"), RoutineID: routine.ID, Title: "Step", Position: i}
		if err := s.InsertStep(ctx, userID, steps[i]); err != nil {
			t.Fatalf("insert step: %v", err)
		}
		if err := s.BumpStepsCount(ctx, userID, routine.ID, 1); err != nil {
			t.Fatalf("bump: %v", err)
		}
	}

	day := time.Now()
	for i, step := range steps {
		log, err := s.ToggleStep(ctx, userID, routine.ID, step.ID, day)
		if err != nil {
			t.Fatalf("toggle: %v", err)
		}
		wantDone := i == len(steps)-1
		if log.IsCompleted != wantDone {
			t.Fatalf("after %d toggles IsCompleted=%v, want %v", i+1, log.IsCompleted, wantDone)
		}
		if log.StepsTotal != 3 {
			t.Fatalf("StepsTotal = %d, want 3", log.StepsTotal)
		}
	}
}

func TestRemoveStepFromDayLogMissingLogIsNoop(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	routine := Routine{
		ID: util.NewID("rtn"), Title: "Quiet", IsActive: true,
		DaysOfWeek: []int{1}, TimeOfDay: "anytime",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.InsertRoutine(ctx, userID, routine); err != nil {
		t.Fatalf("insert routine: %v", err)
	}

	if err := s.RemoveStepFromDayLog(ctx, userID, routine.ID, "stp_missing", time.Now()); err != nil {
		t.Fatalf("remove from absent log should be a no-op, got: %v", err)
	}

	logs, err := s.RoutineLogsForDay(ctx, userID, time.Now())
	if err != nil {
		t.Fatalf("logs for day: %v", err)
	}
	if _, found := logs[routine.ID]; found {
		t.Fatal("no log should have been created by the no-op removal")
	}
}

func TestDeleteRoutineLeavesDayLogs(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	routine := Routine{
		ID: util.NewID("rtn"), Title: "Short lived", IsActive: true,
		DaysOfWeek: []int{1, 2, 3, 4, 5, 6, 7}, TimeOfDay: "morning",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.InsertRoutine(ctx, userID, routine); err != nil {
		t.Fatalf("insert routine: %v", err)
	}
	step := RoutineStep{ID: util.NewID("stp"), RoutineID: routine.ID, Title: "Only step"}
	if err := s.InsertStep(ctx, userID, step); err != nil {
		t.Fatalf("insert step: %v", err)
	}
	if err := s.BumpStepsCount(ctx, userID, routine.ID, 1); err != nil {
		t.Fatalf("bump: %v", err)
	}

	day := time.Now()
	if _, err := s.ToggleStep(ctx, userID, routine.ID, step.ID, day); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := s.DeleteRoutine(ctx, userID, routine.ID); err != nil {
		t.Fatalf("delete routine: %v", err)
	}

	if _, err := s.GetRoutine(ctx, userID, routine.ID); err == nil {
		t.Fatal("routine should be gone")
	}
	remaining, err := s.ListSteps(ctx, userID, routine.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("steps remaining after delete: %d", len(remaining))
	}

	// Historical day logs survive the delete.
	logs, err := s.RoutineLogsForDay(ctx, userID, day)
	if err != nil {
		t.Fatalf("logs for day: %v", err)
	}
	if _, found := logs[routine.ID]; !found {
		t.Fatal("day log should survive routine deletion")
	}
}

func TestHabitDayKeysFeedStreak(t *testing.T) {
	s := setupIntegrationStore(t)
	ctx := context.Background()
	userID := seedTestUser(t, s)

	habit := Habit{ID: util.NewID("hab"), Title: "Read", TargetPerDay: 1, IsActive: true, CreatedAt: time.Now()}
	if err := s.InsertHabit(ctx, userID, habit); err != nil {
		t.Fatalf("insert habit: %v", err)
	}

	today := time.Now()
	for offset := 0; offset < 3; offset++ {
		day := today.AddDate(0, 0, -offset)
		if _, err := s.IncrementHabitCount(ctx, userID, habit.ID, day); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	keys, err := s.HabitDayKeys(ctx, userID, habit.ID, today.AddDate(0, 0, -10), today)
	if err != nil {
		t.Fatalf("day keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("day keys = %v, want 3 entries", keys)
	}
	want := daykey.Key(today)
	found := false
	for _, k := range keys {
		if k == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("today's key %s missing from %v", want, keys)
	}
}
