package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RemoteTaskRequest is the contract handed to an external worker pool.
// The wire protocol behind it is the dispatcher implementation's concern.
type RemoteTaskRequest struct {
	TaskID  uuid.UUID      `json:"task_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty"`
}

// RemoteTaskResponse is the result returned by an external worker pool.
type RemoteTaskResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RemoteDispatcher hands a task to a remote worker pool and awaits its
// result. Dispatch must respect ctx cancellation; whether it polls or
// receives a callback underneath is up to the implementation. No
// implementation ships with this module.
type RemoteDispatcher interface {
	Dispatch(ctx context.Context, req RemoteTaskRequest) (RemoteTaskResponse, error)
}

// remoteExecutor adapts a RemoteDispatcher to the Executor interface.
type remoteExecutor struct {
	dispatcher RemoteDispatcher
}

func (e remoteExecutor) Execute(ctx context.Context, t *Task, _ Handler) (any, error) {
	if e.dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	resp, err := e.dispatcher.Dispatch(ctx, RemoteTaskRequest{
		TaskID:  t.ID,
		Type:    t.Type,
		Payload: t.Payload,
		Timeout: t.Options.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}
