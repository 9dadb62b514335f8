package livesync

import (
	"log/slog"
	gosync "sync"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

// DownloadReducer projects model download envelopes into a map keyed by
// model id. An entry present means the download is in flight; the explicit
// complete envelope is the only success signal. An error envelope also
// removes the entry but records the failure, so a vanished entry is never
// mistaken for a finished download.
type DownloadReducer struct {
	mu     gosync.RWMutex
	active map[string]Envelope
	errors map[string]string
}

// NewDownloadReducer creates an empty download projection.
func NewDownloadReducer() *DownloadReducer {
	return &DownloadReducer{
		active: make(map[string]Envelope),
		errors: make(map[string]string),
	}
}

// Apply folds one envelope into the projection. Envelopes with other type
// discriminants are ignored.
func (r *DownloadReducer) Apply(ev Envelope) {
	switch ev.Type {
	case TypeDownloadProgress:
		r.mu.Lock()
		r.active[ev.Model] = ev
		delete(r.errors, ev.Model)
		r.mu.Unlock()
		if logEnabled(slog.LevelDebug) {
			sub("downloads").Debug("progress", "model", ev.Model,
				"downloaded", humanize.Bytes(clampBytes(ev.BytesDownloaded)),
				"total", humanize.Bytes(clampBytes(ev.BytesTotal)))
		}
	case TypeDownloadComplete:
		r.mu.Lock()
		delete(r.active, ev.Model)
		delete(r.errors, ev.Model)
		r.mu.Unlock()
		sub("downloads").Info("download complete", "model", ev.Model)
	case TypeDownloadError:
		r.mu.Lock()
		delete(r.active, ev.Model)
		r.errors[ev.Model] = ev.Error
		r.mu.Unlock()
		sub("downloads").Warn("download failed", "model", ev.Model, "err", ev.Error)
	}
}

// Get returns the latest progress envelope for the given model.
func (r *DownloadReducer) Get(model string) (Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.active[model]
	return ev, ok
}

// Models returns the ids of all in-flight downloads.
func (r *DownloadReducer) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.active)
}

// LastError returns the recorded failure for a model, if any.
func (r *DownloadReducer) LastError(model string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.errors[model]
	return msg, ok
}

// Len returns the number of in-flight downloads.
func (r *DownloadReducer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// clampBytes floors a byte counter at zero so a bogus negative value never
// wraps around in the unsigned conversion.
func clampBytes(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Clear wipes the projection, including recorded errors.
func (r *DownloadReducer) Clear() {
	r.mu.Lock()
	r.active = make(map[string]Envelope)
	r.errors = make(map[string]string)
	r.mu.Unlock()
}

// ScanReducer projects scan envelopes into a map keyed by library id.
// Progress and complete envelopes land in the same slot; the discriminant
// tells a finished scan from a running one. Entries are never removed, so a
// consumer can still read the final counters after completion.
type ScanReducer struct {
	mu      gosync.RWMutex
	entries map[string]Envelope
}

// NewScanReducer creates an empty scan projection.
func NewScanReducer() *ScanReducer {
	return &ScanReducer{entries: make(map[string]Envelope)}
}

// Apply folds one envelope into the projection.
func (r *ScanReducer) Apply(ev Envelope) {
	switch ev.Type {
	case TypeScanProgress, TypeScanComplete:
		r.mu.Lock()
		r.entries[ev.LibraryID] = ev
		r.mu.Unlock()
		if ev.Type == TypeScanComplete {
			sub("scans").Info("scan complete", "library", ev.LibraryID,
				"found", ev.FilesFound, "new", ev.FilesNew,
				"changed", ev.FilesChanged, "deleted", ev.FilesDeleted)
		}
	}
}

// Get returns the latest scan envelope for the given library.
func (r *ScanReducer) Get(libraryID string) (Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.entries[libraryID]
	return ev, ok
}

// Running returns the libraries whose latest envelope is still a progress
// update.
func (r *ScanReducer) Running() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	running := lo.PickBy(r.entries, func(_ string, ev Envelope) bool {
		return ev.Type == TypeScanProgress
	})
	return lo.Keys(running)
}

// Len returns the number of libraries with a scan entry.
func (r *ScanReducer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear wipes the projection.
func (r *ScanReducer) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]Envelope)
	r.mu.Unlock()
}

// JobReducer projects job envelopes into a map keyed by job id. Progress,
// complete and failed envelopes all upsert; the map is bounded by the number
// of jobs seen in one session and never pruned by the reducer itself.
type JobReducer struct {
	mu      gosync.RWMutex
	entries map[string]Envelope
}

// NewJobReducer creates an empty job projection.
func NewJobReducer() *JobReducer {
	return &JobReducer{entries: make(map[string]Envelope)}
}

// Apply folds one envelope into the projection.
func (r *JobReducer) Apply(ev Envelope) {
	switch ev.Type {
	case TypeJobProgress, TypeJobComplete, TypeJobFailed:
		r.mu.Lock()
		r.entries[ev.JobID] = ev
		r.mu.Unlock()
	}
}

// Get returns the latest envelope for the given job.
func (r *JobReducer) Get(jobID string) (Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.entries[jobID]
	return ev, ok
}

// ByVideo returns the latest job envelopes touching the given video.
func (r *JobReducer) ByVideo(videoID string) []Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(lo.Values(r.entries), func(ev Envelope, _ int) bool {
		return ev.VideoID == videoID
	})
}

// Len returns the number of jobs with an entry.
func (r *JobReducer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear wipes the projection.
func (r *JobReducer) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]Envelope)
	r.mu.Unlock()
}
