package run

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pipewheel/pipewheel/config"
	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/pipeline"
)

// WorkflowRunner executes a workflow against the execution engine.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflow *pipeline.Workflow, pipelineID string, useFileHistory bool) (*ExecutionResult, error)
}

// HTTPRunner drives the workflow engine over its HTTP API.
type HTTPRunner struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRunner creates a runner against the given engine endpoint.
func NewHTTPRunner(endpoint string, timeout time.Duration) *HTTPRunner {
	return &HTTPRunner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// RunnerFromConfig builds the engine runner from configuration.
func RunnerFromConfig(cfg *config.Config) *HTTPRunner {
	return NewHTTPRunner(
		cfg.Engine.Endpoint,
		time.Duration(cfg.Engine.TimeoutSeconds)*time.Second,
	)
}

type runRequest struct {
	WorkflowID     string `json:"workflow_id"`
	PipelineID     string `json:"pipeline_id"`
	UseFileHistory bool   `json:"use_file_history"`
}

// RunWorkflow posts the execution request and blocks until the engine
// responds. Scheduled runs pass useFileHistory=true so already-processed
// files are skipped.
func (r *HTTPRunner) RunWorkflow(ctx context.Context, workflow *pipeline.Workflow, pipelineID string, useFileHistory bool) (*ExecutionResult, error) {
	body, err := json.Marshal(runRequest{
		WorkflowID:     workflow.ID,
		PipelineID:     pipelineID,
		UseFileHistory: useFileHistory,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal run request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/executions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build run request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "engine request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("engine returned status %d for workflow %s", resp.StatusCode, workflow.ID)
	}

	var result ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode engine response")
	}

	return &result, nil
}
