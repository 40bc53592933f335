package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Environment variables passed to the worker process.
const (
	EnvTaskID      = "TASK_ID"
	EnvTaskType    = "TASK_TYPE"
	EnvTaskPayload = "TASK_PAYLOAD"
)

// WorkerResult is the JSON message a worker process writes to stdout as
// its final line.
type WorkerResult struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// subprocessExecutor runs each attempt in an isolated worker process. The
// payload travels through the environment and the result comes back as a
// JSON line on stdout. The context deadline kills the worker outright, so
// a hung handler cannot wedge the orchestrator.
type subprocessExecutor struct {
	command string
	logger  *slog.Logger
}

func newSubprocessExecutor(command string, logger *slog.Logger) *subprocessExecutor {
	return &subprocessExecutor{command: command, logger: logger}
}

func (e *subprocessExecutor) Execute(ctx context.Context, t *Task, _ Handler) (any, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command)
	// After a kill, don't wait forever on pipes a grandchild may still
	// hold open.
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(os.Environ(),
		EnvTaskID+"="+t.ID.String(),
		EnvTaskType+"="+t.Type,
		EnvTaskPayload+"="+string(payload),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		e.logger.Warn("worker process killed after timeout",
			"task_id", t.ID,
			"task_type", t.Type)
		return nil, fmt.Errorf("%w: worker killed", ErrTimeout)
	}

	if runErr != nil {
		return nil, fmt.Errorf("worker process failed: %w (stderr: %s)",
			runErr, strings.TrimSpace(stderr.String()))
	}

	res, err := parseWorkerResult(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("worker reported failure: %s", res.Error)
	}
	return res.Result, nil
}

// parseWorkerResult decodes the last non-empty stdout line. Earlier lines
// are tolerated so workers may log to stdout without breaking the protocol.
func parseWorkerResult(out []byte) (WorkerResult, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var res WorkerResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return WorkerResult{}, fmt.Errorf("worker produced invalid result line: %w", err)
		}
		return res, nil
	}
	return WorkerResult{}, errors.New("worker produced no result")
}
