package constants

// Worker status constants
type WorkerStatus string

const (
	WorkerStatusWaiting  WorkerStatus = "WAITING"   // Registered, no job held
	WorkerStatusWorking  WorkerStatus = "WORKING"   // Holding a leased job
	WorkerStatusTimedOut WorkerStatus = "TIMED_OUT" // Reaped after heartbeat expiry
	WorkerStatusFinished WorkerStatus = "FINISHED"  // Unregistered by the worker itself
)

func (s WorkerStatus) String() string {
	return string(s)
}

// IsActive reports whether the worker may still heartbeat and lease jobs.
func (s WorkerStatus) IsActive() bool {
	return s == WorkerStatusWaiting || s == WorkerStatusWorking
}

// ActiveWorkerStatuses lists statuses the reaper considers alive.
var ActiveWorkerStatuses = []WorkerStatus{WorkerStatusWaiting, WorkerStatusWorking}

const (
	DefaultQueue = "default"
)
