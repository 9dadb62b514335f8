package livesync

// Envelope type discriminants pushed by the engine. heartbeat, pong and
// auth_success are transport-level and never reach application consumers.
const (
	TypeHeartbeat        = "heartbeat"
	TypePong             = "pong"
	TypeAuthSuccess      = "auth_success"
	TypeDownloadProgress = "model_download_progress"
	TypeDownloadComplete = "model_download_complete"
	TypeDownloadError    = "model_download_error"
	TypeScanProgress     = "scan_progress"
	TypeScanComplete     = "scan_complete"
	TypeJobProgress      = "job_progress"
	TypeJobComplete      = "job_complete"
	TypeJobFailed        = "job_failed"
)

// Envelope is one decoded push-channel message. The engine sends a flat JSON
// object per frame; which payload fields are populated depends on Type.
// Envelopes are immutable once decoded.
type Envelope struct {
	Type string `json:"type"`

	// Model download payload.
	Model           string `json:"model,omitempty"`
	BytesDownloaded int64  `json:"bytes_downloaded,omitempty"`
	BytesTotal      int64  `json:"bytes_total,omitempty"`
	Error           string `json:"error,omitempty"`

	// Library scan payload.
	LibraryID    string `json:"library_id,omitempty"`
	FilesFound   int    `json:"files_found,omitempty"`
	FilesNew     int    `json:"files_new,omitempty"`
	FilesChanged int    `json:"files_changed,omitempty"`
	FilesDeleted int    `json:"files_deleted,omitempty"`

	// Indexing job payload.
	JobID        string `json:"job_id,omitempty"`
	VideoID      string `json:"video_id,omitempty"`
	Stage        string `json:"stage,omitempty"`
	Message      string `json:"message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Shared by download and job payloads, in [0,1].
	Progress float64 `json:"progress,omitempty"`
}

// Transport reports whether this envelope is consumed by the connection
// manager itself rather than forwarded to application consumers.
func (e Envelope) Transport() bool {
	switch e.Type {
	case TypeHeartbeat, TypePong, TypeAuthSuccess:
		return true
	}
	return false
}

// Terminal video statuses used by the pull path. While a job is running the
// status field carries the current stage name instead.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusDone      = "DONE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Video is one element of the snapshot collection served by /api/videos.
type Video struct {
	VideoID      string  `json:"video_id"`
	LibraryID    string  `json:"library_id"`
	Path         string  `json:"path"`
	Filename     string  `json:"filename"`
	FileSize     *int64  `json:"file_size"`
	DurationMS   *int64  `json:"duration_ms"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ErrorCode    *string `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	CreatedAtMS  int64   `json:"created_at_ms"`
	IndexedAtMS  *int64  `json:"indexed_at_ms"`
}

// VideosResponse is the /api/videos list payload.
type VideosResponse struct {
	Videos []Video `json:"videos"`
	Total  int     `json:"total"`
}

// Library is one library summary served by /api/libraries.
type Library struct {
	LibraryID    string  `json:"library_id"`
	FolderPath   string  `json:"folder_path"`
	Name         *string `json:"name"`
	Recursive    bool    `json:"recursive"`
	VideoCount   int     `json:"video_count"`
	IndexedCount int     `json:"indexed_count"`
	CreatedAtMS  int64   `json:"created_at_ms"`
}

// LibrariesResponse is the /api/libraries payload.
type LibrariesResponse struct {
	Libraries []Library `json:"libraries"`
}

// Job is one indexing job served by /api/jobs.
type Job struct {
	JobID        string  `json:"job_id"`
	VideoID      string  `json:"video_id"`
	Status       string  `json:"status"`
	CurrentStage *string `json:"current_stage"`
	Progress     float64 `json:"progress"`
	Message      *string `json:"message"`
	ErrorCode    *string `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	CreatedAtMS  int64   `json:"created_at_ms"`
	UpdatedAtMS  int64   `json:"updated_at_ms"`
}

// JobsResponse is the /api/jobs payload.
type JobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// DisplayName returns the library name, falling back to the folder path.
func (l Library) DisplayName() string {
	if l.Name != nil && *l.Name != "" {
		return *l.Name
	}
	return l.FolderPath
}
