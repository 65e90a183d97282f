package offlinecache

import "fmt"

type CacheStatusStatus string

const (
	CacheStatusHit CacheStatusStatus = "hit"
	CacheStatusFwd CacheStatusStatus = "fwd"
)

type CacheStatusFwdReason string

const (
	// The request is outside of the worker's control (scheme or origin)
	// and was passed to the network untouched.
	CacheStatusFwdBypass CacheStatusFwdReason = "bypass"

	// No generation contained a response matching the request.
	CacheStatusFwdUriMiss CacheStatusFwdReason = "uri-miss"
)

const detailOfflineFallback = "offline-fallback"

// CacheStatus describes how a response was produced.
// Its string form is sent in the Cache-Status response header.
type CacheStatus struct {
	status    CacheStatusStatus
	detail    string
	fwdReason CacheStatusFwdReason
	// The response was written to the dynamic generation.
	Stored bool
}

func (cs *CacheStatus) Hit() {
	cs.status = CacheStatusHit
}

func (cs *CacheStatus) Forward(reason CacheStatusFwdReason) {
	cs.status = CacheStatusFwd
	cs.fwdReason = reason
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) Status() CacheStatusStatus {
	return cs.status
}

func (cs *CacheStatus) FwdReason() CacheStatusFwdReason {
	return cs.fwdReason
}

func (cs *CacheStatus) String() string {
	status := fmt.Sprintf("OfflineCache; %s", cs.status)
	if cs.status == CacheStatusFwd && cs.fwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.fwdReason)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
