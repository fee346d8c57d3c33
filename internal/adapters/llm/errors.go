package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/PabloGalante/tavern-agent/internal/domain"
)

// statusError maps a non-2xx provider status onto the error taxonomy.
func statusError(status int, upstream string) error {
	cause := fmt.Errorf("upstream status %d", status)
	switch {
	case status == http.StatusUnauthorized:
		return domain.NewError(domain.ErrInvalidCredential, cause)
	case status == http.StatusTooManyRequests:
		return domain.NewError(domain.ErrRateLimited, cause)
	case status >= 500:
		return domain.NewError(domain.ErrUpstreamUnavailable, cause)
	}

	msg := strings.TrimSpace(upstream)
	if msg == "" {
		msg = fmt.Sprintf("status %d %s", status, http.StatusText(status))
	}
	return domain.NewErrorf(domain.ErrAPIError, cause, "%s", msg)
}

// transportError maps a failed round trip. Caller cancellation is not a
// transport condition and is returned unchanged.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewError(domain.ErrTimeout, err)
	}

	detail := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		detail = urlErr.Err.Error()
	}
	return domain.NewErrorf(domain.ErrNetworkError, err, "%s", detail)
}

// upstreamMessage pulls error.message out of an OpenAI-shaped error body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return ""
	}
	return payload.Error.Message
}
