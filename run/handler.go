package run

import (
	"context"
	"encoding/json"

	"github.com/pipewheel/pipewheel/errors"
	"github.com/pipewheel/pipewheel/queue"
)

// HandlerName routes scheduled pipeline run jobs to the run handler.
const HandlerName = "pipeline.run"

// Handler executes "pipeline.run" jobs from the queue. The job payload is
// a JSON array of at least [organizationID, pipelineID, pipelineName],
// matching the args stored on the schedule entry.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler creates the pipeline run job handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// Name implements queue.JobHandler.
func (h *Handler) Name() string {
	return HandlerName
}

// Execute implements queue.JobHandler. A malformed payload is the only
// error surfaced to the queue; run failures are absorbed by the
// orchestrator and reflected in pipeline status instead.
func (h *Handler) Execute(ctx context.Context, job *queue.Job) error {
	var args []string
	if err := json.Unmarshal(job.Payload, &args); err != nil {
		return errors.Wrapf(err, "failed to decode payload for job %s", job.ID)
	}
	if len(args) < 3 {
		return errors.Newf("job %s payload has %d args, want at least 3 (organization, pipeline id, pipeline name)", job.ID, len(args))
	}

	h.orchestrator.ExecuteRun(ctx, args[0], args[1], args[2])
	return nil
}
