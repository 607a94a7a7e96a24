package export

import (
	"bytes"
	"html/template"
)

var reportTemplate = template.Must(template.New("report").Parse(reportHTML))

// RenderReportHTML renders the progress report template with provided data
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Progress Report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
    th, td { border: 1px solid #ccc; padding: 0.5rem; text-align: left; }
    th { background: #f5f5f5; }
  </style>
</head>
<body>
  <h1>Progress Report</h1>
  <div class="meta">{{.UserName}} | {{.Period}}</div>
  <h2>Habits</h2>
  {{if .Habits}}
  <table>
    <tr><th>Habit</th><th>Target/day</th><th>Days recorded</th><th>Total ticks</th><th>Days at target</th></tr>
    {{range .Habits}}<tr><td>{{.Title}}</td><td>{{.TargetPerDay}}</td><td>{{.DaysRecorded}}</td><td>{{.TotalTicks}}</td><td>{{.DaysHitTarget}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No habits recorded in this period.</p>{{end}}
  <h2>Routines</h2>
  {{if .Routines}}
  <table>
    <tr><th>Routine</th><th>Steps</th><th>Days completed</th></tr>
    {{range .Routines}}<tr><td>{{.Title}}</td><td>{{.StepsCount}}</td><td>{{.DaysCompleted}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No routines recorded in this period.</p>{{end}}
</body>
</html>`
