package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesOnType(t *testing.T) {
	tests := []struct {
		name string
		body string
		want MessageType
	}{
		{
			name: "new job",
			body: `{"type":"NEW_JOB","jobId":"j1","inputBucket":"b","inputKey":"in.txt","outputPrefix":"jobs/j1/","tasksPerWorker":2,"terminateWhenDone":true}`,
			want: TypeNewJob,
		},
		{
			name: "task done",
			body: `{"type":"TASK_DONE","jobId":"j1","taskId":"0","success":false,"errorMessage":"boom"}`,
			want: TypeTaskDone,
		},
		{
			name: "analysis task",
			body: `{"type":"ANALYSIS_TASK","jobId":"j1","taskId":"0","analysisType":"POS","sourceUrl":"http://x"}`,
			want: TypeAnalysisTask,
		},
		{
			name: "job done",
			body: `{"type":"JOB_DONE","jobId":"j1","success":true,"summaryBucket":"b","summaryKey":"k"}`,
			want: TypeJobDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Kind())
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "not json", body: `NEW_JOB jobId=1`, wantErr: ErrMalformedMessage},
		{name: "no type", body: `{"jobId":"j1"}`, wantErr: ErrMalformedMessage},
		{name: "unknown type", body: `{"type":"PING"}`, wantErr: ErrUnknownMessageType},
		{name: "substring is not a match", body: `{"type":"XNEW_JOB","jobId":"j1"}`, wantErr: ErrUnknownMessageType},
		{name: "new job without id", body: `{"type":"NEW_JOB","inputBucket":"b","inputKey":"k","tasksPerWorker":1}`, wantErr: ErrMalformedMessage},
		{name: "new job zero divisor", body: `{"type":"NEW_JOB","jobId":"j","inputBucket":"b","inputKey":"k","tasksPerWorker":0}`, wantErr: ErrMalformedMessage},
		{name: "task done without task", body: `{"type":"TASK_DONE","jobId":"j"}`, wantErr: ErrMalformedMessage},
		{name: "wrong field type", body: `{"type":"TASK_DONE","jobId":"j","taskId":"1","success":"yes"}`, wantErr: ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeStampsType(t *testing.T) {
	body, err := Encode(JobDone{JobID: "j1", Success: true, SummaryBucket: "b", SummaryKey: "jobs/j1/summary.html"})
	require.NoError(t, err)
	assert.Contains(t, body, `"type":"JOB_DONE"`)

	m, err := Decode(body)
	require.NoError(t, err)
	done := m.(JobDone)
	require.NotNil(t, done.Summary())
	assert.Equal(t, "jobs/j1/summary.html", done.Summary().Key)
}

func TestTaskDoneResult(t *testing.T) {
	ok := TaskDone{JobID: "j", TaskID: "1", Success: true, ResultBucket: "b", ResultKey: "k"}.Result()
	assert.True(t, ok.Success)
	require.NotNil(t, ok.ResultLocation)
	assert.Empty(t, ok.ErrorMessage)

	failed := TaskDone{JobID: "j", TaskID: "2", ErrorMessage: "404"}.Result()
	assert.False(t, failed.Success)
	assert.Nil(t, failed.ResultLocation)
	assert.Equal(t, "404", failed.ErrorMessage)

	noLocation := TaskDone{JobID: "j", TaskID: "3", Success: true}.Result()
	assert.False(t, noLocation.Success)
	assert.NotEmpty(t, noLocation.ErrorMessage)
}

func TestParseTaskList(t *testing.T) {
	input := "POS\thttp://a.txt\n\n  CONSTITUENCY\thttp://b.txt  \nbroken line\nDEPENDENCY\thttp://c\textra\n\t\n"

	specs, skipped := ParseTaskList([]byte(input))

	assert.Equal(t, []TaskSpec{
		{AnalysisType: "POS", SourceRef: "http://a.txt"},
		{AnalysisType: "CONSTITUENCY", SourceRef: "http://b.txt"},
	}, specs)
	assert.Len(t, skipped, 2)
}
