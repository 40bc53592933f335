package task

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subprocessLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestParseWorkerResult(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    WorkerResult
		wantErr bool
	}{
		{
			name:   "single result line",
			stdout: `{"result":"ok"}`,
			want:   WorkerResult{Result: "ok"},
		},
		{
			name:   "log lines before the result are ignored",
			stdout: "starting up\nprocessing\n{\"result\":42}\n",
			want:   WorkerResult{Result: float64(42)},
		},
		{
			name:   "worker error",
			stdout: `{"error":"backup failed"}`,
			want:   WorkerResult{Error: "backup failed"},
		},
		{
			name:    "empty output",
			stdout:  "",
			wantErr: true,
		},
		{
			name:    "garbage output",
			stdout:  "not json at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWorkerResult([]byte(tt.stdout))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubprocessExecutorRunsWorker(t *testing.T) {
	// Use the shell as a stand-in worker that echoes a result line.
	e := newSubprocessExecutor("./testdata/worker-ok.sh", subprocessLogger())

	task := &Task{
		ID:      uuid.New(),
		Type:    "retention.mark",
		Payload: map[string]any{"page_size": 100},
	}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestSubprocessExecutorWorkerFailure(t *testing.T) {
	e := newSubprocessExecutor("./testdata/worker-fail.sh", subprocessLogger())

	task := &Task{ID: uuid.New(), Type: "retention.mark"}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker reported failure")
}

func TestSubprocessExecutorTimeoutKillsWorker(t *testing.T) {
	e := newSubprocessExecutor("./testdata/worker-hang.sh", subprocessLogger())

	task := &Task{ID: uuid.New(), Type: "retention.mark"}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, task, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "worker must be killed, not awaited")
}

func TestSubprocessExecutorMissingBinary(t *testing.T) {
	e := newSubprocessExecutor("./testdata/does-not-exist", subprocessLogger())

	task := &Task{ID: uuid.New(), Type: "retention.mark"}

	_, err := e.Execute(context.Background(), task, nil)
	assert.Error(t, err)
}
