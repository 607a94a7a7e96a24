package export

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func TestSummarizeHabit(t *testing.T) {
	tests := []struct {
		name string
		logs []LogInfo
		want HabitSummary
	}{
		{
			name: "no logs",
			logs: nil,
			want: HabitSummary{Title: "Water", TargetPerDay: 3},
		},
		{
			name: "days below and at target",
			logs: []LogInfo{
				{DayKey: "20260801", Count: 1},
				{DayKey: "20260802", Count: 3},
				{DayKey: "20260803", Count: 5},
			},
			want: HabitSummary{Title: "Water", TargetPerDay: 3, DaysRecorded: 3, TotalTicks: 9, DaysHitTarget: 2},
		},
		{
			name: "zero counts are not recorded days",
			logs: []LogInfo{
				{DayKey: "20260801", Count: 0},
				{DayKey: "20260802", Count: 2},
			},
			want: HabitSummary{Title: "Water", TargetPerDay: 3, DaysRecorded: 1, TotalTicks: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarizeHabit(HabitInfo{ID: "hab_1", Title: "Water", TargetPerDay: 3}, tt.logs)
			if got != tt.want {
				t.Fatalf("summarizeHabit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRenderReportHTML(t *testing.T) {
	report := Report{
		UserName: "Alex",
		Period:   "2026-08-01 to 2026-08-31",
		Habits: []HabitSummary{
			{Title: "Water", TargetPerDay: 8, DaysRecorded: 20, TotalTicks: 140, DaysHitTarget: 12},
		},
		Routines: []RoutineSummary{
			{Title: "Morning routine", StepsCount: 4, DaysCompleted: 18},
		},
	}

	html, err := RenderReportHTML(report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"Alex", "2026-08-01 to 2026-08-31", "Water", "Morning routine", "<table>"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesTitles(t *testing.T) {
	report := Report{
		UserName: "Alex",
		Habits:   []HabitSummary{{Title: "<script>alert(1)</script>"}},
	}

	html, err := RenderReportHTML(report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Fatal("habit title was not escaped")
	}
}

type fakeReportStore struct {
	habits   []HabitInfo
	logs     map[string][]LogInfo
	routines []RoutineInfo
	days     map[string]int
}

func (f *fakeReportStore) ListHabits(ctx context.Context, userID string) ([]HabitInfo, error) {
	return f.habits, nil
}

func (f *fakeReportStore) HabitLogs(ctx context.Context, userID, habitID string, from, to time.Time) ([]LogInfo, error) {
	return f.logs[habitID], nil
}

func (f *fakeReportStore) ListRoutines(ctx context.Context, userID string) ([]RoutineInfo, error) {
	return f.routines, nil
}

func (f *fakeReportStore) CompletedRoutineDays(ctx context.Context, userID, routineID string, from, to time.Time) (int, error) {
	return f.days[routineID], nil
}

func TestExportCSVShape(t *testing.T) {
	svc := NewService(&fakeReportStore{
		habits: []HabitInfo{{ID: "hab_1", Title: "Water", TargetPerDay: 2}},
		logs: map[string][]LogInfo{
			"hab_1": {{DayKey: "20260801", Count: 2}, {DayKey: "20260802", Count: 1}},
		},
		routines: []RoutineInfo{{ID: "rtn_1", Title: "Wind down", StepsCount: 3}},
		days:     map[string]int{"rtn_1": 5},
	})

	result, err := svc.Export(context.Background(), Request{
		UserID:   "usr_1",
		UserName: "Alex",
		From:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Format:   FormatCSV,
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.MimeType != "text/csv" {
		t.Fatalf("mime type = %s", result.MimeType)
	}
	if !strings.HasSuffix(result.Filename, ".csv") {
		t.Fatalf("filename = %s", result.Filename)
	}

	reader := csv.NewReader(strings.NewReader(string(result.Data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}

	// Header, one habit row, routine header, one routine row.
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if records[1][0] != "Water" || records[1][1] != "2" || records[1][2] != "2" || records[1][3] != "3" || records[1][4] != "1" {
		t.Fatalf("habit row = %v", records[1])
	}
	if records[3][0] != "Wind down" || records[3][1] != "3" || records[3][2] != "5" {
		t.Fatalf("routine row = %v", records[3])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeReportStore{})
	_, err := svc.Export(context.Background(), Request{Format: Format("docx")})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"progress-report-2026-08-01 to 2026-08-31", "progress-report-2026-08-01-to-2026-08-31"},
		{"", "report"},
		{"///***", "report"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
