package tripproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	proxyerr "github.com/randalmurphal/tripproxy/pkg/tripproxy/errors"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

// Sentinel errors for request validation.
var (
	// ErrInvalidFetchOptions indicates the resolved options are not a usable
	// fetch options object.
	ErrInvalidFetchOptions = errors.New("invalid fetch options")

	// ErrUnsupportedScheme indicates the resolved URL is not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrHostNotAllowed indicates the resolved URL's host is outside the
	// configured allow-list.
	ErrHostNotAllowed = errors.New("host not allowed")
)

// UpstreamError wraps a fetch that produced no usable response.
type UpstreamError struct {
	// Method is the upstream request method.
	Method string
	// Host is the upstream host. The full URL is omitted because it may
	// carry resolved secrets.
	Host string
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s failed after %d attempt(s): %v", e.Method, e.Host, e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the upstream failure was a timeout.
func (e *UpstreamError) Timeout() bool {
	return isTimeout(e.Err)
}

// stripURL unwraps *url.Error, whose message embeds the full request URL
// and therefore any resolved secrets.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr *proxyerr.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusFor maps an error from the fetch pipeline to the status returned
// to the browser.
func statusFor(err error) int {
	var undefined *template.UndefinedVariableError
	var upstream *UpstreamError
	switch {
	case errors.Is(err, template.ErrInvalidInput),
		errors.Is(err, template.ErrDecoding),
		errors.Is(err, ErrInvalidFetchOptions),
		errors.Is(err, ErrUnsupportedScheme):
		return http.StatusBadRequest
	case errors.Is(err, ErrHostNotAllowed):
		return http.StatusForbidden
	case errors.As(err, &undefined):
		// The server is missing configuration the template needs.
		return http.StatusInternalServerError
	case errors.As(err, &upstream):
		if upstream.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text returned to the browser. Resolution and
// options errors are echoed; target and upstream failures are reduced to
// their sentinel text so resolved hosts and secrets stay server-side.
func publicMessage(err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrHostNotAllowed):
		return ErrHostNotAllowed.Error()
	case errors.Is(err, ErrUnsupportedScheme):
		return ErrUnsupportedScheme.Error()
	case errors.As(err, &upstream):
		if upstream.Timeout() {
			return "upstream request timed out"
		}
		return "upstream request failed"
	default:
		return err.Error()
	}
}
