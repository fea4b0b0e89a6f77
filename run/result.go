// Package run orchestrates pipeline executions: it gates them on
// entitlement, drives pipeline status through the run lifecycle, and
// records execution history.
package run

// MetadataKey is the key under which the engine attaches internal
// bookkeeping to each result record. It is stripped before results are
// surfaced to logs or callers.
const MetadataKey = "metadata"

// ExecutionResult is what the workflow engine returns for one run.
type ExecutionResult struct {
	ExecutionID string                   `json:"execution_id"`
	Status      string                   `json:"status"`
	Records     []map[string]interface{} `json:"result,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// StripMetadata removes engine-internal metadata from every result record.
func (r *ExecutionResult) StripMetadata() {
	for _, record := range r.Records {
		delete(record, MetadataKey)
	}
}
