package client

import (
	"context"
	"net/http"

	"botbridge/internal/domain"
	"botbridge/internal/httpapi"
)

// Adapter is the per-platform capability set a Client orchestrates. Each
// adapter reconciles one platform's transport model (one-shot signed
// webhook, long-lived push stream, duplex socket) into the shared
// send/receive contract.
type Adapter interface {
	// Name is the adapter identifier and its default namespace.
	Name() string

	// Validate checks that every required credential is present. A client
	// refuses to attach when it fails.
	Validate() error

	// FormatUpdate translates one raw platform event into the normalized
	// Update.
	FormatUpdate(raw any) (*domain.Update, error)

	// SendTransport performs the actual platform call for an already
	// validated outgoing message.
	SendTransport(ctx context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error)

	// HandleWebhook processes one inbound webhook call. rawBody holds the
	// unparsed body bytes for signature verification.
	HandleWebhook(c *Client, w http.ResponseWriter, r *http.Request, rawBody []byte)
}

// Starter is implemented by adapters whose transport is a long-lived
// connection (stream, socket) rather than request/response. Start blocks
// until ctx is cancelled or the connection fails.
type Starter interface {
	Start(ctx context.Context, c *Client) error
	Stop() error
}

// UserInfoProvider is implemented by adapters whose platform supports
// profile lookups.
type UserInfoProvider interface {
	GetUserInfo(ctx context.Context, userID string) (domain.UserInfo, error)
}

// RouteRegistrar lets an adapter mount extra endpoints on its namespace
// beyond the shared webhook and event routes (e.g. a socket upgrade path).
type RouteRegistrar interface {
	RegisterRoutes(c *Client, ns *httpapi.Namespace)
}
