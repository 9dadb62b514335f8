package livesync

import (
	gosync "sync"
)

// AllLibraries selects the synthetic aggregate view spanning every library.
const AllLibraries = ""

// Reconciler patches the currently held snapshot collection in place using
// job envelopes, and queues a full refetch when a scan finishes for the
// displayed library. It never inserts or removes items — new elements only
// ever come from a snapshot fetch.
type Reconciler struct {
	mu        gosync.Mutex
	libraryID string
	videos    []Video
	index     map[string]int // video id → slice index, rebuilt per snapshot
	queue     *RefetchQueue
}

// NewReconciler creates a reconciler feeding refetch triggers into queue.
func NewReconciler(queue *RefetchQueue) *Reconciler {
	return &Reconciler{queue: queue}
}

// SetCollection replaces the held snapshot wholesale. libraryID is the
// library the collection was fetched for, or AllLibraries for the
// aggregate view.
func (r *Reconciler) SetCollection(libraryID string, videos []Video) {
	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.VideoID] = i
	}

	r.mu.Lock()
	r.libraryID = libraryID
	r.videos = videos
	r.index = index
	r.mu.Unlock()

	sub("reconcile").Debug("collection replaced", "library", libraryID, "videos", len(videos))
}

// LibraryID returns the library the held collection was fetched for.
func (r *Reconciler) LibraryID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.libraryID
}

// Videos returns a copy of the held collection with all patches applied.
func (r *Reconciler) Videos() []Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Video, len(r.videos))
	copy(out, r.videos)
	return out
}

// Video returns the held entry for one id, if present.
func (r *Reconciler) Video(videoID string) (Video, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[videoID]
	if !ok {
		return Video{}, false
	}
	return r.videos[i], true
}

// Apply folds one envelope into the reconciliation step. It is registered
// as an ordinary router handler.
func (r *Reconciler) Apply(ev Envelope) {
	switch ev.Type {
	case TypeScanComplete:
		r.applyScanComplete(ev)
	case TypeJobProgress, TypeJobComplete, TypeJobFailed:
		r.applyJob(ev)
	}
}

// applyScanComplete queues a snapshot refetch when the finished scan
// touches the displayed collection (or the aggregate view is displayed).
// An empty collection still triggers: when the initial snapshot fetch
// failed, this is the path that fills the gap.
func (r *Reconciler) applyScanComplete(ev Envelope) {
	r.mu.Lock()
	matches := r.libraryID == AllLibraries || r.libraryID == ev.LibraryID
	r.mu.Unlock()

	if !matches {
		return
	}
	r.queue.Push(ev.LibraryID)
}

// applyJob patches exactly one item of the held collection in place. An id
// with no matching item (a library not currently displayed) is ignored
// here; the event stays visible to the job reducer.
func (r *Reconciler) applyJob(ev Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[ev.VideoID]
	if !ok {
		return
	}
	v := &r.videos[i]

	switch ev.Type {
	case TypeJobProgress:
		v.Status = ev.Stage
		v.Progress = ev.Progress
	case TypeJobComplete:
		v.Status = StatusDone
		v.Progress = 1.0
		v.ErrorCode = nil
		v.ErrorMessage = nil
	case TypeJobFailed:
		v.Status = StatusFailed
		code, msg := ev.ErrorCode, ev.ErrorMessage
		v.ErrorCode = &code
		v.ErrorMessage = &msg
	}
}
