// Package propstore implements the layered header/param store described
// in spec §4.B, grounded on the teacher's deep-merge resolution style in
// internal/common/config.ConfigResolver (global → host → pattern layers,
// replace-vs-merge semantics per field).
package propstore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// Validator runs against the post-merge view during a mutation; a
// non-nil error rejects the whole mutation atomically (spec §8: "if
// validate.* throws, the store state is unchanged").
type Validator func(merged map[string]string, method string) error

// deniedKeys guards against prototype-pollution-style keys on any
// generic map ingestion (spec §9), kept even though Go maps have no
// prototype chain — callers may round-trip these into a JS runtime.
var deniedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Store holds three layers of string→string properties (headers or
// params) with per-call > per-method > defaults precedence.
type Store struct {
	mu        sync.RWMutex
	defaults  map[string]string
	perMethod map[string]map[string]string
	validate  Validator
}

// New creates an empty Store with an optional validation hook.
func New(validate Validator) *Store {
	return &Store{
		defaults:  make(map[string]string),
		perMethod: make(map[string]map[string]string),
		validate:  validate,
	}
}

func normalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// Set merges key/value (or a whole map) into the defaults layer, or the
// named method layer when method is non-empty. The validation hook sees
// the prospective merged view and may reject the mutation.
func (s *Store) Set(kv map[string]string, method string) error {
	for k := range kv {
		if deniedKeys[k] {
			return &types.ValidationError{Message: fmt.Sprintf("rejected unsafe key %q", k)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	method = normalizeMethod(method)
	target := s.defaults
	if method != "" {
		if s.perMethod[method] == nil {
			s.perMethod[method] = make(map[string]string)
		}
		target = s.perMethod[method]
	}

	trial := cloneMap(target)
	for k, v := range kv {
		trial[k] = v
	}

	if s.validate != nil {
		merged := s.resolveLocked(method, nil)
		for k, v := range trial {
			merged[k] = v
		}
		if err := s.validate(merged, method); err != nil {
			return &types.ValidationError{Message: "property validation failed", Cause: err}
		}
	}

	for k, v := range kv {
		target[k] = v
	}
	return nil
}

// Remove deletes keys from the target layer only (defaults, or the named
// method layer).
func (s *Store) Remove(keys []string, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method = normalizeMethod(method)
	target := s.defaults
	if method != "" {
		target = s.perMethod[method]
	}
	if target == nil {
		return
	}
	for _, k := range keys {
		delete(target, k)
	}
}

// Has reports whether key is present in the effective view for method
// (defaults merged under the method layer).
func (s *Store) Has(key, method string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := s.resolveLocked(method, nil)
	_, ok := merged[key]
	return ok
}

// Resolve returns a fresh merged map: defaults ⊕ methodLayer ⊕ perCall,
// in that precedence order (spec §4.B). Validation is never invoked here.
func (s *Store) Resolve(method string, perCall map[string]string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(method, perCall)
}

func (s *Store) resolveLocked(method string, perCall map[string]string) map[string]string {
	out := cloneMap(s.defaults)
	method = normalizeMethod(method)
	// A method never listed in perMethod is "no override", never an error
	// (SPEC_FULL.md Open Question decision #3).
	if layer, ok := s.perMethod[method]; ok {
		for k, v := range layer {
			out[k] = v
		}
	}
	for k, v := range perCall {
		out[k] = v
	}
	return out
}

// Defaults returns a clone of the defaults layer (no aliasing, spec §4.B).
func (s *Store) Defaults() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.defaults)
}

// All returns a clone of every layer, keyed by method ("" is defaults).
func (s *Store) All() map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]string, len(s.perMethod)+1)
	out[""] = cloneMap(s.defaults)
	for m, layer := range s.perMethod {
		out[m] = cloneMap(layer)
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
