package domain

// WorkerRegistration is published by a worker when it comes online.
type WorkerRegistration struct {
	WorkerID  string `json:"worker_id" validate:"required"`
	Language  string `json:"language"`
	Status    string `json:"status" validate:"omitempty,oneof=idle busy"`
	Timestamp int64  `json:"timestamp"`
}

// WorkerStatusUpdate is published by a worker whenever its status changes.
type WorkerStatusUpdate struct {
	WorkerID  string `json:"worker_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=idle busy"`
	Timestamp int64  `json:"timestamp"`
}
