package service

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"time"

	"github.com/timmy/textfleet/internal/domain"
)

// PartialFailureMessage is the JOB_DONE error when some tasks failed.
const PartialFailureMessage = "Some tasks failed. See summary for details."

// ReportRow is one task line of a job report.
type ReportRow struct {
	TaskID       string
	AnalysisType string
	SourceRef    string
	Success      bool
	ResultURL    string
	ErrorMessage string
}

// Report summarizes every task result of a completed job.
type Report struct {
	JobID       string
	TotalTasks  int
	Completed   int
	Failed      int
	Success     bool
	GeneratedAt time.Time
	Rows        []ReportRow
}

// BuildReport orders results by task id and derives the overall outcome.
// urlFor turns a result location into a link.
func BuildReport(jobID string, total int, results map[string]domain.TaskResult, urlFor func(domain.Location) string, now time.Time) Report {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	SortTaskIDs(ids)

	rep := Report{
		JobID:       jobID,
		TotalTasks:  total,
		Completed:   len(results),
		Success:     len(results) > 0,
		GeneratedAt: now,
		Rows:        make([]ReportRow, 0, len(ids)),
	}
	for _, id := range ids {
		r := results[id]
		row := ReportRow{
			TaskID:       id,
			AnalysisType: r.AnalysisType,
			SourceRef:    r.SourceRef,
			Success:      r.Success,
			ErrorMessage: r.ErrorMessage,
		}
		if r.Success && r.ResultLocation != nil {
			row.ResultURL = urlFor(*r.ResultLocation)
		}
		if !r.Success {
			rep.Success = false
			rep.Failed++
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}

// SortTaskIDs orders numeric ids by value before non-numeric ids, which
// sort lexically.
func SortTaskIDs(ids []string) {
	sort.SliceStable(ids, func(a, b int) bool { return compareTaskIDs(ids[a], ids[b]) < 0 })
}

func compareTaskIDs(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil && na != nb:
		if na < nb {
			return -1
		}
		return 1
	case errA == nil && errB != nil:
		return -1
	case errA != nil && errB == nil:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

var reportTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Job {{.JobID}} summary</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 4px 8px; }
.fail { color: #b00; }
</style>
</head>
<body>
<h1>Job {{.JobID}}</h1>
<p>Total tasks: {{.TotalTasks}} &middot; Completed: {{.Completed}} &middot; Failed: {{.Failed}} &middot; Generated: {{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}</p>
<table>
<tr><th>Task ID</th><th>Analysis Type</th><th>Source URL</th><th>Success</th><th>Result</th><th>Error</th></tr>
{{- range .Rows}}
<tr{{if not .Success}} class="fail"{{end}}>
<td>{{.TaskID}}</td>
<td>{{.AnalysisType}}</td>
<td>{{.SourceRef}}</td>
<td>{{if .Success}}YES{{else}}NO{{end}}</td>
<td>{{if .ResultURL}}<a href="{{.ResultURL}}">{{.ResultURL}}</a>{{else}}-{{end}}</td>
<td>{{.ErrorMessage}}</td>
</tr>
{{- end}}
</table>
</body>
</html>
`))

// Render produces the HTML summary.
func (r Report) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render report for job %s: %w", r.JobID, err)
	}
	return buf.Bytes(), nil
}
