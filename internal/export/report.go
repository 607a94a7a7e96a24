package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for report data access. The from/to pair
// is the report window; implementations return only records inside it.
type DataStore interface {
	ListHabits(ctx context.Context, userID string) ([]HabitInfo, error)
	HabitLogs(ctx context.Context, userID, habitID string, from, to time.Time) ([]LogInfo, error)
	ListRoutines(ctx context.Context, userID string) ([]RoutineInfo, error)
	CompletedRoutineDays(ctx context.Context, userID, routineID string, from, to time.Time) (int, error)
}

// HabitInfo holds basic habit metadata
type HabitInfo struct {
	ID           string
	Title        string
	TargetPerDay int
}

// LogInfo holds one day's count for a habit within the report window
type LogInfo struct {
	DayKey string
	Count  int
}

// RoutineInfo holds basic routine metadata
type RoutineInfo struct {
	ID         string
	Title      string
	StepsCount int
}

// HabitSummary is one habit's row in the report
type HabitSummary struct {
	Title         string
	TargetPerDay  int
	DaysRecorded  int
	TotalTicks    int
	DaysHitTarget int
}

// RoutineSummary is one routine's row in the report
type RoutineSummary struct {
	Title         string
	StepsCount    int
	DaysCompleted int
}

// Report is the assembled progress report
type Report struct {
	UserName string
	Period   string
	Habits   []HabitSummary
	Routines []RoutineSummary
}

// Service provides progress report export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export builds the report for the request window and renders it in the
// requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.buildReport(ctx, req)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatCSV:
		return exportCSV(report)
	case FormatPDF:
		html, err := RenderReportHTML(report)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, "progress-report-"+report.Period)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) buildReport(ctx context.Context, req Request) (Report, error) {
	report := Report{
		UserName: req.UserName,
		Period:   req.From.Format("2006-01-02") + " to " + req.To.Format("2006-01-02"),
		Habits:   []HabitSummary{},
		Routines: []RoutineSummary{},
	}

	habits, err := s.store.ListHabits(ctx, req.UserID)
	if err != nil {
		return Report{}, fmt.Errorf("list habits: %w", err)
	}
	for _, habit := range habits {
		logs, err := s.store.HabitLogs(ctx, req.UserID, habit.ID, req.From, req.To)
		if err != nil {
			return Report{}, fmt.Errorf("habit logs: %w", err)
		}
		report.Habits = append(report.Habits, summarizeHabit(habit, logs))
	}

	routines, err := s.store.ListRoutines(ctx, req.UserID)
	if err != nil {
		return Report{}, fmt.Errorf("list routines: %w", err)
	}
	for _, routine := range routines {
		days, err := s.store.CompletedRoutineDays(ctx, req.UserID, routine.ID, req.From, req.To)
		if err != nil {
			return Report{}, fmt.Errorf("completed routine days: %w", err)
		}
		report.Routines = append(report.Routines, RoutineSummary{
			Title:         routine.Title,
			StepsCount:    routine.StepsCount,
			DaysCompleted: days,
		})
	}

	return report, nil
}

func summarizeHabit(habit HabitInfo, logs []LogInfo) HabitSummary {
	summary := HabitSummary{
		Title:        habit.Title,
		TargetPerDay: habit.TargetPerDay,
	}
	for _, entry := range logs {
		if entry.Count < 1 {
			continue
		}
		summary.DaysRecorded++
		summary.TotalTicks += entry.Count
		if entry.Count >= habit.TargetPerDay {
			summary.DaysHitTarget++
		}
	}
	return summary
}
