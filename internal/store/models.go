package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Habit struct {
	ID           string
	Title        string
	TargetPerDay int
	IsActive     bool
	CreatedAt    time.Time
}

// HabitLog is the daily counter record for one habit. ID is the composite
// document id habitId_dayKey.
type HabitLog struct {
	ID       string
	HabitID  string
	DayKey   string
	DayStart time.Time
	Count    int
}

type Routine struct {
	ID             string
	Title          string
	IsActive       bool
	DaysOfWeek     []int // 1=Mon .. 7=Sun
	TimeOfDay      string
	ReminderHour   *int
	ReminderMinute *int
	StepsCount     int
	Position       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type RoutineStep struct {
	ID         string
	RoutineID  string
	Title      string
	HabitID    *string
	Position   int
	IsOptional bool
}

// RoutineLog tracks which steps of a routine were completed on one day.
// ID is routineId_dayKey. StepsTotal and IsCompleted are caches recomputed
// from the routine's steps_count at every transactional write.
type RoutineLog struct {
	ID               string
	RoutineID        string
	DayKey           string
	DayStart         time.Time
	CompletedStepIDs []string
	StepsTotal       int
	IsCompleted      bool
}

type Mood struct {
	ID        string
	Mood      string
	Note      string
	CreatedAt time.Time
}

// RoutineUpdate carries the mutable routine fields for Update. Nil pointers
// leave the stored value untouched.
type RoutineUpdate struct {
	Title          *string
	IsActive       *bool
	DaysOfWeek     []int
	TimeOfDay      *string
	ReminderHour   *int
	ReminderMinute *int
	ClearReminder  bool
	Position       *int
}
