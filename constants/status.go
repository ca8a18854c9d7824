package constants

// RunStatus is the canonical status for rows in extraction_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusQueued    RunStatus = "QUEUED"    // accepted by the HTTP edge, waiting for a worker
	RunStatusRunning   RunStatus = "RUNNING"   // pipeline in progress
	RunStatusSucceeded RunStatus = "SUCCEEDED" // workbook written
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure
	RunStatusCancelled RunStatus = "CANCELLED" // interrupted, checkpoint left behind
)

// PipelineState is a step of a single extraction run.
type PipelineState string

const (
	StateInit        PipelineState = "INIT"
	StateRestoring   PipelineState = "RESTORING"
	StateRasterizing PipelineState = "RASTERIZING"
	StatePageLoop    PipelineState = "PAGE_LOOP"
	StateFinalizing  PipelineState = "FINALIZING"
	StateDone        PipelineState = "DONE"
	StateFailed      PipelineState = "FAILED"
)
