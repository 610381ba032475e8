package webhook

import (
	"errors"
	"net/http"
	"time"
)

// ErrMalformedPayload is returned by handlers for bodies that are not valid
// JSON or lack required fields.
var ErrMalformedPayload = errors.New("malformed payload")

// Config holds webhook server configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// DeliveryTimeout bounds the synchronous chat delivery of one request.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// EndpointConfig is the verification policy and destination for one path.
type EndpointConfig struct {
	// Path is the URL path for this webhook (e.g., "/shotgrid")
	Path string `yaml:"path"`

	// Handler names the payload handler (relay, model_checker)
	Handler string `yaml:"handler"`

	// ChannelID is the chat channel notifications are delivered to
	ChannelID string `yaml:"channel_id"`

	// Secret is the HMAC-SHA1 shared secret
	Secret string `yaml:"secret"`

	// SignatureHeader is the HTTP header carrying "sha1=<hex>"
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// Request is one inbound webhook call, independent of the HTTP transport.
type Request struct {
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the outcome of dispatching a Request. A nil Body means an
// empty response body.
type Response struct {
	Status int
	Body   any
}

// StatusResponse is the JSON response for accepted webhooks.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultDeliveryTimeout = 10 * time.Second
)
