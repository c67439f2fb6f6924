package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// requestIDHeader is set on every attempt, mirroring the teacher
// rsclient's X-Request-ID convention.
const requestIDHeader = "X-Request-ID"

// doAttempt runs one HTTP round trip and classifies the outcome into
// either a *types.Response or a *types.FetchError, synthesizing status
// codes for non-HTTP conditions per spec §3.
func (p *Pipeline) doAttempt(ctx context.Context, resolved *types.ResolvedRequest, attempt int) (*types.Response, *types.FetchError) {
	var bodyReader io.Reader
	if resolved.Body != nil {
		bodyReader = bytes.NewReader(resolved.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(resolved.Method), resolved.URL, bodyReader)
	if err != nil {
		return nil, &types.FetchError{
			Kind: types.ErrorKindNetwork, Status: types.StatusSyntheticMin,
			Attempt: attempt, Method: resolved.Method, URL: resolved.URL, Config: resolved, Cause: err,
		}
	}
	for k, v := range resolved.Headers {
		httpReq.Header.Set(k, v)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, requestID)

	fields := []zap.Field{
		zap.String("method", string(resolved.Method)), zap.String("url", resolved.URL),
		zap.Int("attempt", attempt), zap.String("request_id", requestID),
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		duration := time.Since(start)
		if ctx.Err() != nil {
			kind := types.ErrorKindAbort
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = types.ErrorKindTimeout
			}
			p.logger.Warn("request aborted", append(fields, zap.Duration("duration", duration), zap.String("kind", string(kind)))...)
			return nil, &types.FetchError{
				Kind: kind, Status: types.StatusAbort, Aborted: true,
				Attempt: attempt, Method: resolved.Method, URL: resolved.URL,
				Request: httpReq, Config: resolved, Cause: ctx.Err(),
			}
		}
		p.logger.Error("transport failure", append(fields, zap.Duration("duration", duration), zap.Error(err))...)
		return nil, &types.FetchError{
			Kind: types.ErrorKindNetwork, Status: types.StatusSyntheticMin,
			Attempt: attempt, Method: resolved.Method, URL: resolved.URL,
			Request: httpReq, Config: resolved, Cause: err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("failed to read response body", append(fields, zap.Int("status", resp.StatusCode), zap.Error(err))...)
		return nil, &types.FetchError{
			Kind: types.ErrorKindNetwork, Status: resp.StatusCode,
			Attempt: attempt, Method: resolved.Method, URL: resolved.URL,
			Request: httpReq, Config: resolved, Cause: err,
		}
	}

	data := parseBody(resp.Header.Get("Content-Type"), resp.StatusCode, raw)
	duration := time.Since(start)

	if resp.StatusCode >= 400 {
		p.logger.Warn("upstream returned error status", append(fields, zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))...)
		return nil, &types.FetchError{
			Kind: types.ErrorKindHTTP, Status: resp.StatusCode, Data: data,
			Attempt: attempt, Method: resolved.Method, URL: resolved.URL,
			Request: httpReq, Config: resolved,
		}
	}

	p.logger.Debug("request completed", append(fields, zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))...)
	return &types.Response{
		Data: data, Headers: resp.Header, Status: resp.StatusCode,
		Request: httpReq, Config: resolved,
	}, nil
}

// parseBody resolves empty-body responses (204 or empty content) to a
// nil data value without throwing, and otherwise branches on
// Content-Type the way the teacher's render-service client does.
func parseBody(contentType string, status int, raw []byte) any {
	if status == types.StatusNoContent || len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		return string(raw)
	}
	if strings.HasPrefix(contentType, "text/") {
		return string(raw)
	}
	return raw
}

// shouldRetry implements spec §4.G's retry decision: shouldRetry(err)
// wins over retryableStatusCodes when both are present; abort
// (including timeout) is never retryable.
func (p *Pipeline) shouldRetry(cfg *types.RetryConfig, ferr *types.FetchError, attempt int) (retry bool, delay time.Duration) {
	if cfg == nil || !cfg.Enabled || ferr.Aborted {
		return false, 0
	}
	if attempt >= cfg.MaxAttempts {
		return false, 0
	}

	if cfg.ShouldRetry != nil {
		ok, override, hasOverride := cfg.ShouldRetry(ferr)
		if !ok {
			return false, 0
		}
		if hasOverride {
			return true, override
		}
		return true, computeDelay(cfg, attempt)
	}

	if len(cfg.RetryableStatusCodes) > 0 {
		if !containsInt(cfg.RetryableStatusCodes, ferr.Status) {
			return false, 0
		}
		return true, computeDelay(cfg, attempt)
	}

	// No explicit allowlist: retry transport-level failures and 5xx
	// upstream errors, the teacher distributor's own retry boundary.
	if ferr.Kind == types.ErrorKindNetwork || ferr.Kind == types.ErrorKindTimeout {
		return true, computeDelay(cfg, attempt)
	}
	if ferr.Kind == types.ErrorKindHTTP && ferr.Status >= 500 {
		return true, computeDelay(cfg, attempt)
	}
	return false, 0
}

// computeDelay mirrors the teacher's cachedaemon backoff doubling:
// delay = baseDelay * 2^(attempt-1), capped at maxDelay when set.
func computeDelay(cfg *types.RetryConfig, attempt int) time.Duration {
	if !cfg.UseExponentialBackoff {
		return cfg.BaseDelay
	}
	delay := cfg.BaseDelay * time.Duration(int64(1)<<uint(attempt-1))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
