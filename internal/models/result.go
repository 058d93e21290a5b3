package models

// Source attributes an answer to one retrieved chunk.
type Source struct {
	Source string `json:"source"`
	PageNo *int   `json:"pageNo"`
}

// Answer is the result of a question. Sources has one entry per retrieved chunk,
// in rank order, and is never nil.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// UploadResponse is returned by the upload endpoint once the job is queued.
type UploadResponse struct {
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId"`
}

// QueueStats counts jobs per state.
type QueueStats struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`
	Dead     int `json:"dead"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Documents     int        `json:"documents"`
	Records       int        `json:"records"`
	IndexType     string     `json:"index_type"`
	IndexSize     int        `json:"index_size"`
	Queue         QueueStats `json:"queue"`
	DiskUsage     int64      `json:"disk_usage_bytes"`
	EmbedderModel string     `json:"embedding_model"`
	ChatModel     string     `json:"chat_model"`
	WatchedDirs   []string   `json:"watched_directories,omitempty"`
}
