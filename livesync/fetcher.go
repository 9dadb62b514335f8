package livesync

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/maruel/natural"
)

const (
	libCacheKey = "libraries"
	libCacheTTL = 30 * time.Second
)

// Fetcher performs the pull-path snapshot reads. Library summaries change
// rarely outside of scans, so the list is held in a short-lived cache that
// refetch triggers invalidate explicitly.
type Fetcher struct {
	client   *Client
	libCache *ttlcache.Cache[string, []Library]
}

// NewFetcher builds a Fetcher on top of the request client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{
		client: client,
		libCache: ttlcache.New[string, []Library](
			ttlcache.WithTTL[string, []Library](libCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, []Library](),
		),
	}
}

// ListLibraries returns the library summary list, sorted by display name in
// natural order (lib2 before lib10). Served from cache within the TTL.
func (f *Fetcher) ListLibraries(ctx context.Context) ([]Library, error) {
	if item := f.libCache.Get(libCacheKey); item != nil {
		return item.Value(), nil
	}

	var resp LibrariesResponse
	if err := f.client.Get(ctx, "/api/libraries", nil, &resp); err != nil {
		return nil, err
	}

	libs := resp.Libraries
	sort.Slice(libs, func(i, j int) bool {
		return natural.Less(libs[i].DisplayName(), libs[j].DisplayName())
	})

	f.libCache.Set(libCacheKey, libs, ttlcache.DefaultTTL)
	return libs, nil
}

// InvalidateLibraries drops the cached library list so the next read hits
// the engine. Called by the refetch worker after a scan completes.
func (f *Fetcher) InvalidateLibraries() {
	f.libCache.Delete(libCacheKey)
}

// ListVideos returns the video list for one library, or for all libraries
// when libraryID is empty.
func (f *Fetcher) ListVideos(ctx context.Context, libraryID string) ([]Video, error) {
	query := url.Values{}
	if libraryID != "" {
		query.Set("library_id", libraryID)
	}
	var resp VideosResponse
	if err := f.client.Get(ctx, "/api/videos", query, &resp); err != nil {
		return nil, err
	}
	return resp.Videos, nil
}

// GetVideo returns one video by id.
func (f *Fetcher) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	var video Video
	if err := f.client.Get(ctx, "/api/videos/"+videoID, nil, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// ListJobs returns the active indexing jobs.
func (f *Fetcher) ListJobs(ctx context.Context) ([]Job, error) {
	var resp JobsResponse
	if err := f.client.Get(ctx, "/api/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Health probes the engine's health endpoint and returns the raw payload.
func (f *Fetcher) Health(ctx context.Context) (map[string]any, error) {
	var payload map[string]any
	if err := f.client.Get(ctx, "/api/health", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
