package types

import "time"

// EventType is the closed set of lifecycle events the engine emits
// (spec §3). Kept as a distinct string type so LifecycleEmitter listener
// registration can compare against it directly.
type EventType string

const (
	EventFetchBefore                EventType = "fetch-before"
	EventFetchAfter                 EventType = "fetch-after"
	EventFetchResponse              EventType = "fetch-response"
	EventFetchError                 EventType = "fetch-error"
	EventFetchAbort                 EventType = "fetch-abort"
	EventFetchRetry                 EventType = "fetch-retry"
	EventFetchDedupeStart           EventType = "fetch-dedupe-start"
	EventFetchDedupeJoin            EventType = "fetch-dedupe-join"
	EventFetchCacheMiss             EventType = "fetch-cache-miss"
	EventFetchCacheHit              EventType = "fetch-cache-hit"
	EventFetchCacheSet              EventType = "fetch-cache-set"
	EventFetchCacheStale            EventType = "fetch-cache-stale"
	EventFetchCacheRevalidate       EventType = "fetch-cache-revalidate"
	EventFetchCacheRevalidateError  EventType = "fetch-cache-revalidate-error"
	EventFetchCacheExpire           EventType = "fetch-cache-expire"
	EventFetchStateSet              EventType = "fetch-state-set"
	EventFetchStateReset            EventType = "fetch-state-reset"
	EventFetchHeaderAdd             EventType = "fetch-header-add"
	EventFetchHeaderRemove          EventType = "fetch-header-remove"
	EventFetchURLChange             EventType = "fetch-url-change"
	EventFetchModifyOptionsChange       EventType = "fetch-modify-options-change"
	EventFetchModifyMethodOptionsChange EventType = "fetch-modify-method-options-change"
)

// Event is the plain tagged record every emission carries (spec §9:
// "re-architect as a plain tagged record {type, ...payload} and a
// subscription table; no inheritance, no platform event objects").
type Event struct {
	Type    EventType
	State   any
	Method  Method
	URL     string
	Headers map[string]string
	Payload any

	// Event-specific augmentation, at most one of these populated per
	// emission depending on Type.
	Response       *ResponseEventData
	Err            *ErrorEventData
	Retry          *RetryEventData
	Cache          *CacheEventData
	CacheRevalErr  *CacheRevalidateErrorData
}

// ResponseEventData augments fetch-response.
type ResponseEventData struct {
	Data   any
	Status int
}

// ErrorEventData augments fetch-error.
type ErrorEventData struct {
	Status  int
	Data    any
	Attempt int
	Aborted bool
}

// RetryEventData augments fetch-retry.
type RetryEventData struct {
	Attempt   int
	NextDelay time.Duration
}

// CacheEventData augments fetch-cache-{hit,stale,miss,set}.
type CacheEventData struct {
	Key       string
	IsStale   bool
	ExpiresIn time.Duration
}

// CacheRevalidateErrorData augments fetch-cache-revalidate-error.
type CacheRevalidateErrorData struct {
	Key string
	Err error
}
