package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// exportCSV writes the report as two record groups, habits then routines,
// each with its own header row.
func exportCSV(report Report) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"habit", "target_per_day", "days_recorded", "total_ticks", "days_at_target"},
	}
	for _, h := range report.Habits {
		records = append(records, []string{
			h.Title,
			strconv.Itoa(h.TargetPerDay),
			strconv.Itoa(h.DaysRecorded),
			strconv.Itoa(h.TotalTicks),
			strconv.Itoa(h.DaysHitTarget),
		})
	}
	records = append(records, []string{"routine", "steps_count", "days_completed"})
	for _, r := range report.Routines {
		records = append(records, []string{
			r.Title,
			strconv.Itoa(r.StepsCount),
			strconv.Itoa(r.DaysCompleted),
		})
	}

	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename("progress-report-"+report.Period) + ".csv",
		MimeType: "text/csv",
	}, nil
}
