package pipeline

import (
	"fmt"
	"time"

	"github.com/fetchcore/fetchengine/internal/rules"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// defaultCacheTTL sits at the midpoint of the spec's documented "just under
// 60000ms" range (spec §9 open question: exact default is implementer's
// choice in [59000, 60000]).
const defaultCacheTTL = 59500 * time.Millisecond

// PolicyConfig is the bool|{...} cache/dedupe policy shape from spec §6
// (cachePolicy, dedupePolicy), flattened to a struct: Enabled=false
// means the feature is off outright.
type PolicyConfig struct {
	Enabled    bool
	Methods    []types.Method // eligible methods; empty means "all" for dedupe, {GET} for cache
	Rules      *rules.Resolver
	Serializer func(args []any) string

	// DefaultTTL/DefaultStaleIn/DefaultSkip are the policy-level
	// (non-rule) cache settings; a matched rule's own TTL/StaleIn/Skip
	// take precedence when present.
	DefaultTTL     time.Duration
	DefaultStaleIn *time.Duration
	DefaultSkip    func(ctx *types.RequestContext) bool
}

type resolvedCachePolicy struct {
	Enabled bool
	TTL     time.Duration
	StaleIn *time.Duration
}

type resolvedDedupePolicy struct {
	Enabled bool
}

func methodAllowed(allowed []types.Method, method types.Method, fallback []types.Method) bool {
	list := allowed
	if len(list) == 0 {
		list = fallback
	}
	if len(list) == 0 {
		return true
	}
	for _, m := range list {
		if m == method {
			return true
		}
	}
	return false
}

// resolveCache classifies whether and how caching applies to this
// request (spec §4.E "Policy resolution"). A matched rule with
// enabled=false, or skip(ctx)==true, bypasses the cache entirely. A
// panicking skip/serializer fails the whole request (spec: "the whole
// request fails with that error, bubbled as fetch-error").
func (p *Pipeline) resolveCache(rc *types.RequestContext, resolved *types.ResolvedRequest) (resolvedCachePolicy, error) {
	if !p.cachePolicy.Enabled {
		return resolvedCachePolicy{}, nil
	}
	if !methodAllowed(p.cachePolicy.Methods, resolved.Method, []types.Method{types.MethodGet}) {
		return resolvedCachePolicy{}, nil
	}

	rp := resolvedCachePolicy{Enabled: true, TTL: defaultCacheTTL}
	if p.cachePolicy.DefaultTTL > 0 {
		rp.TTL = p.cachePolicy.DefaultTTL
	}
	if p.cachePolicy.DefaultStaleIn != nil {
		rp.StaleIn = p.cachePolicy.DefaultStaleIn
	}
	if p.cachePolicy.DefaultSkip != nil {
		skip, err := callSkip(p.cachePolicy.DefaultSkip, rc)
		if err != nil {
			return resolvedCachePolicy{}, err
		}
		if skip {
			return resolvedCachePolicy{}, nil
		}
	}

	if p.cachePolicy.Rules != nil {
		if rule := p.cachePolicy.Rules.Resolve(resolved.Path, resolved.Method); rule != nil {
			if rule.Enabled != nil && !*rule.Enabled {
				return resolvedCachePolicy{}, nil
			}
			if rule.TTL > 0 {
				rp.TTL = rule.TTL
			}
			if rule.StaleIn != nil {
				rp.StaleIn = rule.StaleIn
			}
			if rule.Skip != nil {
				skip, err := callSkip(rule.Skip, rc)
				if err != nil {
					return resolvedCachePolicy{}, err
				}
				if skip {
					return resolvedCachePolicy{}, nil
				}
			}
		}
	}

	// staleIn >= ttl degrades to "never stale, just expires" (spec §3).
	if rp.StaleIn != nil && *rp.StaleIn >= rp.TTL {
		rp.StaleIn = nil
	}

	return rp, nil
}

func callSkip(skip func(ctx *types.RequestContext) bool, rc *types.RequestContext) (skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: skip() panicked: %v", r)
		}
	}()
	return skip(rc), nil
}

// resolveDedupe classifies whether in-flight dedup applies to this
// request.
func (p *Pipeline) resolveDedupe(rc *types.RequestContext, resolved *types.ResolvedRequest) (resolvedDedupePolicy, error) {
	if !p.dedupePolicy.Enabled {
		return resolvedDedupePolicy{}, nil
	}
	if !methodAllowed(p.dedupePolicy.Methods, resolved.Method, nil) {
		return resolvedDedupePolicy{}, nil
	}
	if p.dedupePolicy.Rules != nil {
		if rule := p.dedupePolicy.Rules.Resolve(resolved.Path, resolved.Method); rule != nil {
			if rule.Enabled != nil && !*rule.Enabled {
				return resolvedDedupePolicy{}, nil
			}
		}
	}
	return resolvedDedupePolicy{Enabled: true}, nil
}
