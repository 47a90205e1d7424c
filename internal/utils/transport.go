package utils

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"vibegame-backend/pkg/logger"
)

var sensitiveHeaders = []string{
	"authorization",
	"x-api-key",
	"x-goog-api-key",
	"x-auth-token",
	"cookie",
}

// DebugTransport logs outgoing requests with credentials redacted.
type DebugTransport struct {
	base http.RoundTripper
}

func NewDebugTransport(base http.RoundTripper) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fields := map[string]any{
		"method": req.Method,
		"url":    redactQuery(req),
	}
	for name, values := range req.Header {
		if IsSensitiveHeader(name) {
			fields["header_"+strings.ToLower(name)] = "[REDACTED]"
			continue
		}
		fields["header_"+strings.ToLower(name)] = strings.Join(values, ", ")
	}

	if req.Body != nil && req.GetBody == nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		fields["body_bytes"] = len(body)
	} else if req.ContentLength > 0 {
		fields["body_bytes"] = req.ContentLength
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	fields["elapsed"] = time.Since(start).String()
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("upstream request failed")
		return nil, err
	}

	fields["status"] = resp.StatusCode
	logger.WithFields(fields).Debug("upstream request")
	return resp, nil
}

// IsSensitiveHeader reports whether a header may carry a credential.
func IsSensitiveHeader(name string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}

func redactQuery(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
