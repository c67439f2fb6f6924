// Package config loads a FetchEngine from a YAML file, the way the
// teacher's internal/common/config.EGConfigManager loads an EgConfig:
// read the file, unmarshal strictly, validate. Defaults are filled in
// later, when fetchengine builds the Engine. Grounded on that file for
// the load sequence and on
// ipiton-alert-history-service's internal/config.DefaultConfigValidator
// for driving go-playground/validator struct tags with a handful of
// hand-written cross-field checks layered on top.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// Duration wraps time.Duration so YAML fields accept "250ms"/"5s"/"2m"
// the way time.ParseDuration does. Grounded on the teacher's
// pkg/types.Duration, minus its day/week extensions (not needed here).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RuleSpec is the YAML shape of a types.PolicyRule.
type RuleSpec struct {
	Name       string  `yaml:"name" validate:"required"`
	StartsWith *string `yaml:"starts_with,omitempty"`
	EndsWith   *string `yaml:"ends_with,omitempty"`
	Includes   *string `yaml:"includes,omitempty"`
	Is         *string `yaml:"is,omitempty"`
	Match      *string `yaml:"match,omitempty"`
	Enabled    *bool   `yaml:"enabled,omitempty"`
	Methods    []string `yaml:"methods,omitempty"`
	TTL        Duration `yaml:"ttl,omitempty"`
	StaleIn    *Duration `yaml:"stale_in,omitempty"`
}

// ToPolicyRule converts the YAML rule shape to types.PolicyRule.
func (r RuleSpec) ToPolicyRule() types.PolicyRule {
	methods := make([]types.Method, 0, len(r.Methods))
	for _, m := range r.Methods {
		methods = append(methods, types.Normalize(m))
	}
	var staleIn *time.Duration
	if r.StaleIn != nil {
		d := time.Duration(*r.StaleIn)
		staleIn = &d
	}
	return types.PolicyRule{
		Name: r.Name,
		Match: types.MatchCriteria{
			StartsWith: r.StartsWith, EndsWith: r.EndsWith,
			Includes: r.Includes, Is: r.Is, Match: r.Match,
		},
		Enabled: r.Enabled,
		Methods: methods,
		TTL:     time.Duration(r.TTL),
		StaleIn: staleIn,
	}
}

// RetrySpec is the YAML shape of a types.RetryConfig.
type RetrySpec struct {
	Enabled               bool     `yaml:"enabled"`
	MaxAttempts           int      `yaml:"max_attempts" validate:"required_if=Enabled true"`
	BaseDelay             Duration `yaml:"base_delay"`
	MaxDelay              Duration `yaml:"max_delay"`
	UseExponentialBackoff bool     `yaml:"use_exponential_backoff"`
	RetryableStatusCodes  []int    `yaml:"retryable_status_codes,omitempty"`
}

// ToRetryConfig converts the YAML retry shape to types.RetryConfig.
func (r *RetrySpec) ToRetryConfig() *types.RetryConfig {
	if r == nil {
		return nil
	}
	return &types.RetryConfig{
		Enabled: r.Enabled, MaxAttempts: r.MaxAttempts,
		BaseDelay: time.Duration(r.BaseDelay), MaxDelay: time.Duration(r.MaxDelay),
		UseExponentialBackoff: r.UseExponentialBackoff, RetryableStatusCodes: r.RetryableStatusCodes,
	}
}

// PolicySpec is the YAML shape shared by cache and dedupe policy blocks.
type PolicySpec struct {
	Enabled bool       `yaml:"enabled"`
	Methods []string   `yaml:"methods,omitempty"`
	Rules   []RuleSpec `yaml:"rules,omitempty" validate:"dive"`
}

// ResolvedMethods converts the YAML method list to []types.Method.
func (p *PolicySpec) ResolvedMethods() []types.Method {
	if p == nil {
		return nil
	}
	out := make([]types.Method, 0, len(p.Methods))
	for _, m := range p.Methods {
		out = append(out, types.Normalize(m))
	}
	return out
}

// PolicyRules converts the YAML rule list to []types.PolicyRule.
func (p *PolicySpec) PolicyRules() []types.PolicyRule {
	if p == nil {
		return nil
	}
	out := make([]types.PolicyRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		out = append(out, r.ToPolicyRule())
	}
	return out
}

// EngineSpec is the top-level YAML document layout for a FetchEngine.
type EngineSpec struct {
	BaseURL     string `yaml:"base_url" validate:"required,url"`
	DefaultType string `yaml:"default_type,omitempty" validate:"omitempty,oneof=json text blob arrayBuffer formData"`
	Timeout     Duration `yaml:"timeout,omitempty"`

	Headers       map[string]string            `yaml:"headers,omitempty"`
	MethodHeaders map[string]map[string]string `yaml:"method_headers,omitempty"`
	Params        map[string]string            `yaml:"params,omitempty"`
	MethodParams  map[string]map[string]string `yaml:"method_params,omitempty"`

	Retry  *RetrySpec  `yaml:"retry,omitempty"`
	Cache  *PolicySpec `yaml:"cache,omitempty"`
	Dedupe *PolicySpec `yaml:"dedupe,omitempty"`

	MetricsNamespace string         `yaml:"metrics_namespace,omitempty"`
	Logging          logging.Config `yaml:"logging,omitempty"`
}

// Load reads path, unmarshals it as an EngineSpec and runs struct-tag
// validation. It does not build an Engine itself (see
// fetchengine.NewFromFile) so callers needing only the parsed config
// (tests, fetchctl's `config validate` subcommand) don't pay for one.
func Load(path string) (*EngineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var spec EngineSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate runs go-playground/validator struct tags plus the
// cross-field checks tags can't express, mirroring
// DefaultConfigValidator's split between structural and business-rule
// validation.
func Validate(spec *EngineSpec) error {
	v := validator.New()
	if err := v.Struct(spec); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed on %q", fieldPath(e.Namespace()), e.Tag()))
			}
			return &types.ConfigError{Message: strings.Join(msgs, "; ")}
		}
		return &types.ConfigError{Message: err.Error()}
	}

	if spec.Retry != nil && spec.Retry.Enabled && spec.Retry.MaxDelay > 0 && spec.Retry.MaxDelay < spec.Retry.BaseDelay {
		return &types.ConfigError{Message: "retry.max_delay must be >= retry.base_delay when both are set"}
	}
	return nil
}

func fieldPath(namespace string) string {
	return strings.TrimPrefix(namespace, "EngineSpec.")
}
