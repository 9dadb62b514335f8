package livesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCollection() []Video {
	return []Video{
		{VideoID: "v1", LibraryID: "lib1", Filename: "a.mp4", Status: StatusQueued, Progress: 0},
		{VideoID: "v2", LibraryID: "lib1", Filename: "b.mp4", Status: StatusDone, Progress: 1},
		{VideoID: "v3", LibraryID: "lib1", Filename: "c.mp4", Status: StatusRunning, Progress: 0.2},
	}
}

func TestReconciler_JobProgressPatchesOneItem(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeJobProgress, JobID: "j1", VideoID: "v1", Stage: "transcribing", Progress: 0.5})

	videos := rec.Videos()
	require.Len(t, videos, 3)
	assert.Equal(t, "transcribing", videos[0].Status)
	assert.Equal(t, 0.5, videos[0].Progress)

	// All other items are untouched.
	assert.Equal(t, testCollection()[1], videos[1])
	assert.Equal(t, testCollection()[2], videos[2])
}

func TestReconciler_JobCompleteForcesTerminalState(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeJobComplete, JobID: "j1", VideoID: "v3"})

	v, ok := rec.Video("v3")
	require.True(t, ok)
	assert.Equal(t, StatusDone, v.Status)
	assert.Equal(t, 1.0, v.Progress)
	assert.Nil(t, v.ErrorCode)
}

func TestReconciler_JobFailedRecordsError(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeJobFailed, JobID: "j1", VideoID: "v1", Stage: "embedding", ErrorCode: "OOM", ErrorMessage: "out of memory"})

	v, ok := rec.Video("v1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, v.Status)
	require.NotNil(t, v.ErrorCode)
	assert.Equal(t, "OOM", *v.ErrorCode)
	require.NotNil(t, v.ErrorMessage)
	assert.Equal(t, "out of memory", *v.ErrorMessage)
}

func TestReconciler_UnknownVideoIgnored(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeJobProgress, JobID: "j1", VideoID: "other-library-video", Stage: "probing", Progress: 0.1})

	assert.Equal(t, testCollection(), rec.Videos(), "patch-only: no insertion, nothing else touched")
}

func TestReconciler_PatchNeverInserts(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeJobComplete, JobID: "j1", VideoID: "v999"})

	assert.Len(t, rec.Videos(), 3)
}

func TestReconciler_ScanCompleteQueuesRefetch(t *testing.T) {
	q := NewRefetchQueue()
	rec := NewReconciler(q)
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeScanProgress, LibraryID: "lib1", FilesFound: 10})
	assert.Equal(t, 0, q.Len(), "progress alone must not trigger a refetch")

	rec.Apply(Envelope{Type: TypeScanComplete, LibraryID: "lib1", FilesFound: 12})
	assert.Equal(t, 1, q.Len(), "refetch triggered exactly once")
}

func TestReconciler_ScanCompleteForOtherLibraryIgnored(t *testing.T) {
	q := NewRefetchQueue()
	rec := NewReconciler(q)
	rec.SetCollection("lib1", testCollection())

	rec.Apply(Envelope{Type: TypeScanComplete, LibraryID: "lib2"})

	assert.Equal(t, 0, q.Len())
}

func TestReconciler_AggregateViewMatchesAnyLibrary(t *testing.T) {
	q := NewRefetchQueue()
	rec := NewReconciler(q)
	rec.SetCollection(AllLibraries, testCollection())

	rec.Apply(Envelope{Type: TypeScanComplete, LibraryID: "lib2"})

	assert.Equal(t, 1, q.Len(), "the aggregate view refetches for any library")
}

func TestReconciler_EmptyCollectionStillTriggersRefetch(t *testing.T) {
	q := NewRefetchQueue()
	rec := NewReconciler(q)

	rec.Apply(Envelope{Type: TypeScanComplete, LibraryID: "lib1"})

	assert.Equal(t, 1, q.Len(), "a scan finishing while nothing is held is the recovery path for a failed snapshot")
}

func TestReconciler_SetCollectionReplacesWholesale(t *testing.T) {
	rec := NewReconciler(NewRefetchQueue())
	rec.SetCollection("lib1", testCollection())
	rec.Apply(Envelope{Type: TypeJobProgress, VideoID: "v1", Stage: "probing", Progress: 0.3})

	fresh := []Video{{VideoID: "v9", LibraryID: "lib2", Status: StatusQueued}}
	rec.SetCollection("lib2", fresh)

	assert.Equal(t, "lib2", rec.LibraryID())
	assert.Equal(t, fresh, rec.Videos())
	_, ok := rec.Video("v1")
	assert.False(t, ok, "old patches do not survive a snapshot replacement")
}
