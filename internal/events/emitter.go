// Package events implements LifecycleEmitter (spec §4.F / §9): a typed
// event bus with exact, wildcard ("*") and regex subscription, grounded
// on the teacher's internal/edge/events.EventEmitter interface (a
// fire-and-forget, non-blocking sink) generalized from a single
// fixed-shape RequestEvent into the engine's closed EventType set, with
// listener-key matching adapted from pkg/pattern's exact/wildcard/regex
// detection (bare string = exact, "*" = wildcard, leading "~"/"~*" = regex).
package events

import (
	"regexp"
	"strings"
	"sync"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// Listener receives a synchronous callback for each matching emission.
type Listener func(types.Event)

type subscription struct {
	id       int64
	matcher  matcher
	listener Listener
	once     bool
}

type matcher interface {
	Matches(t types.EventType) bool
}

type exactMatcher string

func (m exactMatcher) Matches(t types.EventType) bool { return string(t) == string(m) }

type wildcardMatcher struct{}

func (wildcardMatcher) Matches(types.EventType) bool { return true }

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) Matches(t types.EventType) bool { return m.re.MatchString(string(t)) }

// Emitter is the subscription table + synchronous dispatcher.
type Emitter struct {
	mu      sync.RWMutex
	subs    []*subscription
	nextID  int64
}

// New creates an empty Emitter.
func New() *Emitter {
	return &Emitter{}
}

// Options configures a subscription.
type Options struct {
	Once bool
}

// On registers listener against a subscription key: "*" subscribes to
// every event, a bare EventType string is an exact match, and any value
// satisfying the *regexp.Regexp type is a regex match against the event
// type string. It returns a handle usable with Off.
func (e *Emitter) On(key any, listener Listener, opts Options) int64 {
	var m matcher
	switch v := key.(type) {
	case *regexp.Regexp:
		m = regexMatcher{re: v}
	case string:
		if v == "*" {
			m = wildcardMatcher{}
		} else {
			m = exactMatcher(v)
		}
	case types.EventType:
		m = exactMatcher(v)
	default:
		m = exactMatcher("")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, &subscription{id: id, matcher: m, listener: listener, once: opts.Once})
	return id
}

// Off unsubscribes the listener registered under handle.
func (e *Emitter) Off(handle int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == handle {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit fires evt synchronously against every matching subscriber. A
// listener panic is recovered and isolated so it can never stop other
// listeners or corrupt request flow (spec §4.F).
func (e *Emitter) Emit(evt types.Event) {
	e.mu.RLock()
	snapshot := make([]*subscription, len(e.subs))
	copy(snapshot, e.subs)
	e.mu.RUnlock()

	var toRemove []int64
	for _, s := range snapshot {
		if !s.matcher.Matches(evt.Type) {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			s.listener(evt)
		}()
		if s.once {
			toRemove = append(toRemove, s.id)
		}
	}

	if len(toRemove) > 0 {
		e.mu.Lock()
		for _, id := range toRemove {
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i], e.subs[i+1:]...)
					break
				}
			}
		}
		e.mu.Unlock()
	}
}

// DetectKeyKind mirrors pkg/pattern.DetectPatternType's prefix convention
// for callers who register listeners via plain strings: "*" is wildcard,
// a leading "~*" is case-insensitive regex, a leading "~" is
// case-sensitive regex, anything else is an exact event-type match.
func DetectKeyKind(raw string) any {
	if raw == "*" {
		return "*"
	}
	if strings.HasPrefix(raw, "~*") {
		re := regexp.MustCompile("(?i)" + raw[2:])
		return re
	}
	if strings.HasPrefix(raw, "~") {
		re := regexp.MustCompile(raw[1:])
		return re
	}
	return raw
}
