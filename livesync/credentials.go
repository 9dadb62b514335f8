package livesync

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	gosync "sync"

	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
)

// Default runtime info location, relative to the home directory.
const defaultRuntimeFile = ".gaze/runtime.json"

// Environment overrides. When set, they win over the runtime file; an empty
// token is valid and means unauthenticated operation.
const (
	envPort  = "GAZE_ENGINE_PORT"
	envToken = "GAZE_AUTH_TOKEN"
)

// Credentials is the port/token pair needed to reach the engine. Token may
// be empty in non-locked-down configurations.
type Credentials struct {
	Port  int    `json:"port"`
	Token string `json:"token"`
}

// Resolver supplies engine credentials on demand. The launcher writes a
// runtime info file when it spawns the engine; the resolver reads it lazily
// and caches the result until Invalidate is called or the file changes on
// disk (the watcher covers engine restarts, which allocate a fresh port and
// token).
type Resolver struct {
	mu     gosync.Mutex
	path   string
	cached *Credentials
}

// NewResolver creates a resolver reading from path. An empty path selects
// the default location under the home directory.
func NewResolver(path string) (*Resolver, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, defaultRuntimeFile)
	}
	return &Resolver{path: path}, nil
}

// Resolve returns the current credentials, reading the runtime file only
// when the cache is empty. Environment overrides are applied on top.
func (r *Resolver) Resolve() (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached == nil {
		creds, err := r.readFile()
		if err != nil {
			// Env overrides can still produce usable credentials when
			// the runtime file is absent.
			creds = Credentials{}
			if !applyEnv(&creds) {
				return Credentials{}, err
			}
			sub("creds").Debug("runtime file unavailable, using environment", "err", err)
		} else {
			applyEnv(&creds)
		}
		r.cached = &creds
	}
	return *r.cached, nil
}

// Invalidate clears the cached credentials. Clearing an already-clear
// cache is a no-op.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	if r.cached != nil {
		r.cached = nil
		sub("creds").Debug("cache invalidated")
	}
	r.mu.Unlock()
}

// Watch starts an fsnotify watcher on the runtime file's directory and
// invalidates the cache whenever the file is rewritten. Blocks until the
// done channel is closed. Safe to skip entirely; Resolve still works
// without it, callers just won't pick up an engine restart until the next
// explicit invalidation.
func (r *Resolver) Watch(done <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	path := r.path

	// Watch the directory: launchers typically replace the file with a
	// rename, which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	l := sub("creds")
	l.Debug("watching runtime file", "path", path)

	for {
		select {
		case <-done:
			w.Close()
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				l.Info("runtime file changed, invalidating credentials", "op", event.Op.String())
				r.Invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", "err", err)
		}
	}
}

// Path returns the runtime file location this resolver reads from.
func (r *Resolver) Path() string {
	return r.path
}

func (r *Resolver) readFile() (Credentials, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read runtime file: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse runtime file %s: %w", r.path, err)
	}
	if creds.Port == 0 {
		return Credentials{}, fmt.Errorf("runtime file %s: missing port", r.path)
	}
	return creds, nil
}

// applyEnv overlays environment overrides and reports whether a usable
// port is present afterwards.
func applyEnv(creds *Credentials) bool {
	if v := os.Getenv(envPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			creds.Port = port
		}
	}
	if v, ok := os.LookupEnv(envToken); ok {
		creds.Token = v
	}
	return creds.Port > 0
}
