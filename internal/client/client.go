package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"botbridge/internal/domain"
	"botbridge/internal/events"
	"botbridge/internal/httpapi"
)

// DefaultButtonText is the lead text used when quick replies are sent
// without an explicit lead.
const DefaultButtonText = "Please select one of:"

// Client orchestrates one platform adapter: endpoint registration, the
// outgoing pipeline, inbound dispatch and the per-user context store.
type Client struct {
	adapter   Adapter
	namespace string
	router    *events.Router
	pipeline  *Pipeline
	logger    *slog.Logger
	queue     *sendQueue

	contexts *contextStore
}

// Option configures a Client at construction.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithNamespace overrides the adapter's default namespace.
func WithNamespace(ns string) Option {
	return func(c *Client) { c.namespace = ns }
}

// WithSendQueue enables best-effort per-recipient send ordering: sends to
// the same recipient run FIFO through one worker, sends to different
// recipients stay independent. delay, when non-nil, paces each send (e.g.
// by simulated typing time).
func WithSendQueue(delay func(*domain.OutgoingMessage) time.Duration) Option {
	return func(c *Client) { c.queue = newSendQueue(c, delay) }
}

// New builds a client around an adapter. The outgoing contract validation
// step is always installed first in the pipeline.
func New(adapter Adapter, opts ...Option) *Client {
	c := &Client{
		adapter:   adapter,
		namespace: adapter.Name(),
		pipeline:  &Pipeline{},
		logger:    slog.Default(),
		contexts:  newContextStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.router = events.NewRouter(c.logger)
	c.pipeline.Use(ValidateOutgoing)
	return c
}

// Adapter exposes the underlying platform adapter.
func (c *Client) Adapter() Adapter { return c.adapter }

// Namespace reports the namespace the client binds under.
func (c *Client) Namespace() string { return c.namespace }

// Events exposes the client's event router for handler registration.
func (c *Client) Events() *events.Router { return c.router }

// On registers an event handler, shorthand for Events().On.
func (c *Client) On(name string, h events.Handler) { c.router.On(name, h) }

// Pipeline exposes the outgoing pipeline for application steps.
func (c *Client) Pipeline() *Pipeline { return c.pipeline }

// Logger exposes the client logger to adapters.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Attach validates the adapter's configuration and mounts the client's
// endpoints (GET/POST /webhook, POST /event) under its namespace on the
// host server. Attaching the same client to the same server twice
// re-registers the routes and panics in the mux; this is a documented
// limitation, not a guarded case.
func (c *Client) Attach(host *httpapi.Server) (*Client, error) {
	if err := c.adapter.Validate(); err != nil {
		return nil, err
	}

	ns := host.Namespace(c.namespace)
	ns.Get("/webhook", c.handleWebhook)
	ns.Post("/webhook", c.handleWebhook)
	ns.Post("/event", c.handleEvent)

	if rr, ok := c.adapter.(RouteRegistrar); ok {
		rr.RegisterRoutes(c, ns)
	}

	c.logger.Info("client attached", "adapter", c.adapter.Name(), "namespace", c.namespace)
	return c, nil
}

// Start runs the adapter's long-lived connection, when it has one, until
// ctx is cancelled. Adapters without one return immediately.
func (c *Client) Start(ctx context.Context) error {
	starter, ok := c.adapter.(Starter)
	if !ok {
		return nil
	}
	return starter.Start(ctx, c)
}

func (c *Client) handleWebhook(w http.ResponseWriter, r *http.Request, rawBody []byte) {
	c.adapter.HandleWebhook(c, w, r, rawBody)
}

// handleEvent serves the synthetic event endpoint: body JSON merged over
// query parameters into {event, user, data}, dispatched as "<event>_event"
// with a constructed session.
func (c *Client) handleEvent(w http.ResponseWriter, r *http.Request, rawBody []byte) {
	payload := make(map[string]any)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			payload[key] = vals[0]
		}
	}
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			httpapi.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	name, _ := payload["event"].(string)
	if name == "" {
		httpapi.Error(w, http.StatusBadRequest, "event name is required")
		return
	}
	user, _ := payload["user"].(string)
	data, _ := payload["data"].(map[string]any)

	ev := events.Event{
		Name:     fmt.Sprintf("%s_event", name),
		Category: events.CategoryEvent,
		Session:  c.Session(user),
		Data:     data,
	}
	if err := c.router.Trigger(r.Context(), ev); err != nil {
		var de *domain.DispatchError
		if errors.As(err, &de) {
			httpapi.Error(w, http.StatusInternalServerError, de.Error())
			return
		}
		httpapi.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpapi.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReceivedUpdate is the shared dispatch step: the adapter's raw event is
// normalized and emitted as message_received with a fresh session.
func (c *Client) ReceivedUpdate(ctx context.Context, raw any) error {
	return c.ReceivedUpdateWithConn(ctx, raw, nil)
}

// ReceivedUpdateWithConn is ReceivedUpdate for connection-oriented
// adapters: the live connection handle rides on the session so replies can
// be pushed straight back.
func (c *Client) ReceivedUpdateWithConn(ctx context.Context, raw, conn any) error {
	update, err := c.adapter.FormatUpdate(raw)
	if err != nil {
		return err
	}
	sess := c.Session(update.Sender.ID)
	sess.Conn = conn
	return c.router.Trigger(ctx, events.Event{
		Name:     events.MessageReceived,
		Category: events.CategoryWebhook,
		Update:   update,
		Session:  sess,
	})
}

// Send runs msg through the outgoing pipeline and then the adapter's
// transport. Transport errors propagate unchanged; there is no retry.
func (c *Client) Send(ctx context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	out, err := c.pipeline.Run(ctx, msg)
	if err != nil {
		return nil, err
	}
	if c.queue != nil {
		return c.queue.send(ctx, out)
	}
	return c.adapter.SendTransport(ctx, out)
}

// SendTo sends message content to a recipient.
func (c *Client) SendTo(ctx context.Context, content *domain.MessageContent, recipientID string) (*domain.SendResult, error) {
	return c.Send(ctx, &domain.OutgoingMessage{
		Recipient: domain.Party{ID: recipientID},
		Message:   content,
	})
}

// SendTextTo sends a plain text message.
func (c *Client) SendTextTo(ctx context.Context, text, recipientID string) (*domain.SendResult, error) {
	return c.SendTo(ctx, &domain.MessageContent{Text: text}, recipientID)
}

// SendAttachmentTo sends an attachment message.
func (c *Client) SendAttachmentTo(ctx context.Context, attachment domain.Attachment, recipientID string) (*domain.SendResult, error) {
	return c.SendTo(ctx, &domain.MessageContent{Attachment: &attachment}, recipientID)
}

// SendAttachmentFromURLTo sends an attachment built from a type and URL.
func (c *Client) SendAttachmentFromURLTo(ctx context.Context, attachmentType, url, recipientID string) (*domain.SendResult, error) {
	return c.SendAttachmentTo(ctx, domain.Attachment{
		Type:    attachmentType,
		Payload: domain.AttachmentPayload{URL: url},
	}, recipientID)
}

// SendButtonsTo sends up to ten quick replies, each with its title as
// payload. lead is the content carrying the quick replies: a string, a
// domain.Attachment, or nil for the default prompt text. Anything else is a
// validation error, reported before any transport call.
func (c *Client) SendButtonsTo(ctx context.Context, titles []string, recipientID string, lead any) (*domain.SendResult, error) {
	if len(titles) > domain.MaxQuickReplies {
		return nil, &domain.ValidationError{Reason: "buttonTitles must be of length 10 or less"}
	}

	content := &domain.MessageContent{}
	switch v := lead.(type) {
	case nil:
		content.Text = DefaultButtonText
	case string:
		content.Text = v
	case domain.Attachment:
		content.Attachment = &v
	case *domain.Attachment:
		content.Attachment = v
	default:
		return nil, &domain.ValidationError{Reason: "lead must be a string, an attachment or absent"}
	}

	for _, title := range titles {
		content.QuickReplies = append(content.QuickReplies, domain.QuickReply{
			ContentType: "text",
			Title:       title,
			Payload:     title,
		})
	}
	return c.SendTo(ctx, content, recipientID)
}

// Reply sends text back to the sender of an update.
func (c *Client) Reply(ctx context.Context, update *domain.Update, text string) (*domain.SendResult, error) {
	return c.SendTextTo(ctx, text, update.Sender.ID)
}

// StartTyping sets the typing indicator where the platform has one. The
// result carries no message id.
func (c *Client) StartTyping(ctx context.Context, recipientID string) (*domain.SendResult, error) {
	return c.Send(ctx, &domain.OutgoingMessage{
		Recipient:    domain.Party{ID: recipientID},
		SenderAction: domain.SenderActionTyping,
	})
}

// GetUserInfo looks up a user's profile on platforms that support it and
// resolves an empty profile everywhere else.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (domain.UserInfo, error) {
	if p, ok := c.adapter.(UserInfoProvider); ok {
		return p.GetUserInfo(ctx, userID)
	}
	return domain.UserInfo{}, nil
}
