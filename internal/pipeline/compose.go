package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/fetchcore/fetchengine/internal/fingerprint"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// compose assembles a ResolvedRequest from layered headers/params, the
// instance's modify hooks, validators and content-type negotiation
// (spec §4.G "Composition rules", order significant). Any error here is
// a pre-flight failure: no fetch-before is emitted for it.
func (p *Pipeline) compose(rc *types.RequestContext) (*types.ResolvedRequest, error) {
	method := rc.Method

	headers := p.headerStore.Resolve(string(method), rc.Headers)
	params := p.paramStore.Resolve(string(method), rc.Params)

	state := rc.State

	if p.validateState != nil {
		if err := p.validateState(state); err != nil {
			return nil, &types.ValidationError{Message: "state validation failed", Cause: err}
		}
	}
	if p.validateHeaders != nil {
		if err := p.validateHeaders(headers, method); err != nil {
			return nil, &types.ValidationError{Message: "header validation failed", Cause: err}
		}
	}
	if p.validateParams != nil {
		if err := p.validateParams(params, method); err != nil {
			return nil, &types.ValidationError{Message: "param validation failed", Cause: err}
		}
	}

	absoluteURL, err := p.buildURL(rc.Path, params)
	if err != nil {
		return nil, &types.ConfigError{Message: err.Error()}
	}

	resolved := &types.ResolvedRequest{
		Method:  method,
		Path:    rc.Path,
		URL:     absoluteURL,
		Headers: headers,
		Params:  params,
		Timeout: rc.Timeout,
		State:   state,
	}

	if p.modifyOptions != nil {
		if err := p.modifyOptions(resolved, state); err != nil {
			return nil, err
		}
	}
	if fn := p.modifyMethodOptions[method]; fn != nil {
		if err := fn(resolved, state); err != nil {
			return nil, err
		}
	}

	contentType := p.defaultType
	if p.determineType != nil {
		contentType = p.determineType(rc)
	}

	body, err := encodeBody(rc.Payload, contentType, method)
	if err != nil {
		return nil, &types.ConfigError{Message: err.Error()}
	}
	resolved.Body = body

	resolved.DedupeKey = p.computeKey(p.dedupePolicy.Serializer, resolved)
	resolved.CacheKey = p.computeKey(p.cachePolicy.Serializer, resolved)

	return resolved, nil
}

func (p *Pipeline) computeKey(serializer func(args []any) string, resolved *types.ResolvedRequest) string {
	if serializer != nil {
		return serializer([]any{resolved.Method, resolved.URL, resolved.Body})
	}
	input := struct {
		Method types.Method
		URL    string
		Body   string
	}{resolved.Method, resolved.URL, string(resolved.Body)}
	return fingerprint.Hash(fingerprint.Of(input, nil))
}

func (p *Pipeline) buildURL(path string, params map[string]string) (string, error) {
	base := p.BaseURL()
	joined := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("pipeline: invalid url %q: %w", joined, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody serializes payload per contentType. GET/HEAD forbid a body
// (spec §4.G step 7).
func encodeBody(payload any, contentType types.ContentType, method types.Method) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	if method == types.MethodGet || method == types.MethodHead {
		return nil, fmt.Errorf("pipeline: %s requests may not carry a body", method)
	}

	switch contentType {
	case types.ContentTypeJSON, "":
		return json.Marshal(payload)
	case types.ContentTypeText:
		switch v := payload.(type) {
		case string:
			return []byte(v), nil
		case []byte:
			return v, nil
		default:
			return nil, fmt.Errorf("pipeline: text payload must be string or []byte, got %T", payload)
		}
	case types.ContentTypeBlob, types.ContentTypeArrayBuffer:
		if b, ok := payload.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("pipeline: %s payload must be []byte, got %T", contentType, payload)
	case types.ContentTypeFormData:
		values, ok := payload.(map[string]string)
		if !ok {
			return nil, fmt.Errorf("pipeline: formData payload must be map[string]string, got %T", payload)
		}
		form := url.Values{}
		for k, v := range values {
			form.Set(k, v)
		}
		var buf bytes.Buffer
		buf.WriteString(form.Encode())
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("pipeline: unknown content type %q", contentType)
	}
}
