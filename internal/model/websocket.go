package model

// WebSocket message types pushed to /ws/jobs/:jobId subscribers.
const (
	WSTypeJobUpdate = "job_update"
	WSTypeError     = "error"
	WSTypePing      = "ping"
	WSTypePong      = "pong"
)

// WSMessage is the bare envelope used for client keep-alive traffic.
type WSMessage struct {
	Type string `json:"type"`
}

// JobUpdateMessage notifies subscribers about a job status change so the
// client can stop its polling loop early.
type JobUpdateMessage struct {
	Type         string    `json:"type"`
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	ResultImages []string  `json:"resultImages,omitempty"`
	Error        string    `json:"error,omitempty"`
}
