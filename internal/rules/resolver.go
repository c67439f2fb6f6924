// Package rules implements RuleResolver (spec §4.C): matches a request
// against an ordered rule list, AND-combining the criteria present on
// each rule, first match wins. Grounded on the teacher's
// internal/common/config.PatternMatcher (top-to-bottom rule evaluation,
// first match wins) generalized from single-pattern path matching to the
// spec's {startsWith, endsWith, includes, is, match} criteria set, and
// given the same bounded per-engine resolution cache the teacher applies
// via config caching, here backed by hashicorp/golang-lru.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// compiledRule mirrors types.PolicyRule but with Match pre-compiled, the
// way the teacher pre-compiles URLRule patterns at construction.
type compiledRule struct {
	rule  types.PolicyRule
	regex *regexp.Regexp
}

type cacheKey struct {
	path   string
	method types.Method
}

// Resolver matches requests against an ordered rule list and memoizes
// the result per (path, method).
type Resolver struct {
	mu    sync.RWMutex
	rules []compiledRule
	cache *lru.Cache[cacheKey, *types.PolicyRule]
}

const defaultCacheSize = 2048

// New constructs a Resolver. Rejects any rule lacking at least one match
// criterion (spec §4.C: "At construction, reject any rule lacking at
// least one criterion").
func New(initial []types.PolicyRule) (*Resolver, error) {
	cache, err := lru.New[cacheKey, *types.PolicyRule](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("rules: failed to allocate resolution cache: %w", err)
	}
	r := &Resolver{cache: cache}
	if err := r.SetRules(initial); err != nil {
		return nil, err
	}
	return r, nil
}

// SetRules replaces the rule list and invalidates the resolution cache
// (spec §4.C: "cache is invalidated whenever the rule list ... changes").
func (r *Resolver) SetRules(rules []types.PolicyRule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if !rule.Match.HasAny() {
			return fmt.Errorf("rules: rule %d (%q) has no match criteria", i, rule.Name)
		}
		cr := compiledRule{rule: rule}
		if rule.Match.Match != nil {
			re, err := regexp.Compile(*rule.Match.Match)
			if err != nil {
				return fmt.Errorf("rules: rule %d (%q): invalid regex: %w", i, rule.Name, err)
			}
			cr.regex = re
		}
		compiled = append(compiled, cr)
	}

	r.mu.Lock()
	r.rules = compiled
	r.mu.Unlock()
	r.cache.Purge()
	return nil
}

// Resolve returns the first rule whose AND-combined criteria all hold
// for (path, method), or nil if no rule matches.
func (r *Resolver) Resolve(path string, method types.Method) *types.PolicyRule {
	key := cacheKey{path: path, method: method}
	if hit, ok := r.cache.Get(key); ok {
		return hit
	}

	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for i := range rules {
		if matches(rules[i], path, method) {
			rule := rules[i].rule
			r.cache.Add(key, &rule)
			return &rule
		}
	}
	r.cache.Add(key, nil)
	return nil
}

func matches(cr compiledRule, path string, method types.Method) bool {
	if cr.rule.Methods != nil && !methodIn(cr.rule.Methods, method) {
		return false
	}
	m := cr.rule.Match
	if m.StartsWith != nil && !strings.HasPrefix(path, *m.StartsWith) {
		return false
	}
	if m.EndsWith != nil && !strings.HasSuffix(path, *m.EndsWith) {
		return false
	}
	if m.Includes != nil && !strings.Contains(path, *m.Includes) {
		return false
	}
	if m.Is != nil && path != *m.Is {
		return false
	}
	if cr.regex != nil && !cr.regex.MatchString(path) {
		return false
	}
	return true
}

func methodIn(methods []types.Method, method types.Method) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
