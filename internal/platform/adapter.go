package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind is the closed set of failure classes adapters are allowed to
// surface. Anything a platform returns that does not map cleanly lands in
// ErrKindUnknown with the raw message preserved.
type ErrorKind string

const (
	ErrKindAuthExpired      ErrorKind = "auth_expired"
	ErrKindRateLimited      ErrorKind = "rate_limited"
	ErrKindTransientNetwork ErrorKind = "transient_network"
	ErrKindPlatformRejected ErrorKind = "validation_rejected_by_platform"
	ErrKindUnknown          ErrorKind = "unknown"
)

type PublishError struct {
	Kind       ErrorKind
	Retryable  bool
	RawMessage string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.RawMessage)
}

// Reason renders the operator-facing explanation for a failed target.
func (e *PublishError) Reason() string {
	switch e.Kind {
	case ErrKindAuthExpired:
		return "account authorization expired, reconnect required"
	case ErrKindRateLimited:
		return "platform rate limit exceeded"
	case ErrKindTransientNetwork:
		return "temporary network or platform outage"
	case ErrKindPlatformRejected:
		return "content rejected by platform: " + e.RawMessage
	default:
		return "unexpected platform error: " + e.RawMessage
	}
}

func AuthExpired(msg string) *PublishError {
	return &PublishError{Kind: ErrKindAuthExpired, Retryable: false, RawMessage: msg}
}

func RateLimited(msg string) *PublishError {
	return &PublishError{Kind: ErrKindRateLimited, Retryable: true, RawMessage: msg}
}

func TransientNetwork(msg string) *PublishError {
	return &PublishError{Kind: ErrKindTransientNetwork, Retryable: true, RawMessage: msg}
}

func Rejected(msg string) *PublishError {
	return &PublishError{Kind: ErrKindPlatformRejected, Retryable: false, RawMessage: msg}
}

func Unknown(msg string) *PublishError {
	return &PublishError{Kind: ErrKindUnknown, Retryable: false, RawMessage: msg}
}

// AsPublishError unwraps err into a *PublishError when possible.
func AsPublishError(err error) (*PublishError, bool) {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type Media struct {
	URL      string
	MimeType string
	FileSize int64
	Width    int
	Height   int
}

// PublishRequest carries everything an adapter needs for one publish call.
// AccessToken is an already-decrypted credential handed through by the
// coordinator; adapters must not persist it.
type PublishRequest struct {
	AccountID    string
	AccountName  string
	AccessToken  string
	PostType     string
	Content      string
	Media        []Media
	FirstComment string
}

type PublishResult struct {
	PlatformPostID string
	PlatformURL    string
}

// Adapter normalizes one social network's publish API. Implementations map
// every non-2xx or malformed response to a PublishError; they never return a
// bare error from the HTTP layer.
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// Adapter calls share one client with a hard timeout; a timeout counts as a
// transient network failure.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// wrapTransport classifies transport-level failures (DNS, refused
// connections, timeouts) as retryable transient errors.
func wrapTransport(err error) *PublishError {
	return TransientNetwork(err.Error())
}

// classifyStatus is the default HTTP status mapping shared by adapters whose
// APIs follow conventional status semantics. Adapters refine this with
// platform error codes where the body carries them.
func classifyStatus(status int, body string) *PublishError {
	switch {
	case status == http.StatusUnauthorized:
		return AuthExpired(body)
	case status == http.StatusTooManyRequests:
		return RateLimited(body)
	case status >= 500:
		return TransientNetwork(body)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return Rejected(body)
	default:
		return Unknown(fmt.Sprintf("status %d: %s", status, body))
	}
}
