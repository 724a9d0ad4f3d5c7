package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/sprintreport/internal/domain"
)

// ClassifyResponse converts a resty call outcome into nil or a classified
// *domain.UpstreamError.
// Parameters:
//   - sourceName: upstream system name, e.g. "jira".
//   - op: logical operation, e.g. "fetch_sprint".
//   - resp: response, may be nil when err is set.
//   - err: transport error returned by resty.
//
// Returns:
//   - error: nil on 2xx, otherwise a classified upstream error.
func ClassifyResponse(sourceName, op string, resp *resty.Response, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		if resp != nil && resp.IsSuccess() {
			return Malformed(sourceName, op, err)
		}
		return domain.NewTransientError(sourceName, op, 0, classifyTransportError(err))
	}
	if resp == nil {
		return domain.NewTransientError(sourceName, op, 0, errors.New("empty response"))
	}
	if resp.IsSuccess() {
		return nil
	}

	status := resp.StatusCode()
	cause := errors.New(truncate(resp.String(), 300))
	if IsTransientStatus(status) {
		return domain.NewTransientError(sourceName, op, status, cause)
	}
	return domain.NewPermanentError(sourceName, op, status, cause)
}

// IsTransientStatus reports whether an HTTP status may succeed on retry.
func IsTransientStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}

// DecodeJSON classifies a resty call outcome and decodes a successful body
// into out. A 2xx body that is not the expected JSON, such as an HTML login
// page, is a permanent failure.
func DecodeJSON(sourceName, op string, resp *resty.Response, err error, out any) error {
	if err := ClassifyResponse(sourceName, op, resp, err); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return Malformed(sourceName, op, fmt.Errorf("%s body: %w", contentType(resp), err))
	}
	return nil
}

func contentType(resp *resty.Response) string {
	if ct := resp.Header().Get("Content-Type"); ct != "" {
		return ct
	}
	return "untyped"
}

// Malformed reports a response body that could not be decoded.
func Malformed(sourceName, op string, err error) error {
	return domain.NewPermanentError(sourceName, op, 0, fmt.Errorf("malformed response: %w", err))
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
