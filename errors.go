package offlinecache

import (
	"errors"
	"fmt"
)

var (
	// ErrInstall is matched by every install failure.
	ErrInstall = errors.New("install failed")
	// ErrNotInstalled is returned when activating a worker that did not install.
	ErrNotInstalled = errors.New("worker is not installed")
	// ErrNetwork is returned when a request missed the cache and the network failed.
	ErrNetwork = errors.New("network request failed")
	// ErrNoFallback is returned for a document request that failed while offline
	// and no root document was cached either.
	ErrNoFallback = errors.New("no offline fallback cached")
)

// InstallError is returned by Worker.Install.
// Path is the manifest path that could not be precached, if any.
type InstallError struct {
	Path string
	Err  error
}

func (e *InstallError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("install: %v", e.Err)
	}
	return fmt.Sprintf("install: precache %s: %v", e.Path, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

func (e *InstallError) Is(target error) bool {
	return target == ErrInstall
}

var errVaryStar = errors.New("response varies on *")

// statusError is an install failure due to a non-ok response.
type statusError struct {
	statusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bad response status %d", e.statusCode)
}
