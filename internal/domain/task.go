package domain

import (
	"bufio"
	"bytes"
	"strings"
)

// Analysis types understood by workers.
const (
	AnalysisPOS          = "POS"
	AnalysisConstituency = "CONSTITUENCY"
	AnalysisDependency   = "DEPENDENCY"
)

// TaskSpec is one enumerated input entry.
type TaskSpec struct {
	AnalysisType string
	SourceRef    string
}

// TaskResult is the outcome of one dispatched task.
// ResultLocation is set iff Success; ErrorMessage is set iff not.
type TaskResult struct {
	TaskID         string    `json:"taskId"`
	AnalysisType   string    `json:"analysisType"`
	SourceRef      string    `json:"sourceRef"`
	Success        bool      `json:"success"`
	ResultLocation *Location `json:"resultLocation,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// ParseTaskList enumerates "<analysisType>\t<sourceRef>" lines.
// Blank lines are ignored. Lines of any other shape are returned in skipped.
func ParseTaskList(data []byte) (specs []TaskSpec, skipped []string) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			skipped = append(skipped, line)
			continue
		}
		analysisType := strings.TrimSpace(parts[0])
		source := strings.TrimSpace(parts[1])
		if analysisType == "" || source == "" {
			skipped = append(skipped, line)
			continue
		}
		specs = append(specs, TaskSpec{AnalysisType: analysisType, SourceRef: source})
	}
	return specs, skipped
}
