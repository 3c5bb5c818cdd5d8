package facebook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botbridge/internal/client"
	"botbridge/internal/config"
	"botbridge/internal/domain"
	"botbridge/internal/httpapi"

	"github.com/google/uuid"
)

const defaultGraphURI = "https://graph.facebook.com/v21.0"

// Adapter implements the Messenger platform: signed one-shot webhooks in,
// Graph API calls out.
type Adapter struct {
	cfg        config.FacebookConfig
	httpClient *http.Client
}

// New builds the adapter, filling unset fields from defaults.
func New(cfg config.FacebookConfig) *Adapter {
	if cfg.Namespace == "" {
		cfg.Namespace = "facebook"
	}
	if cfg.GraphURI == "" {
		cfg.GraphURI = defaultGraphURI
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) Name() string { return a.cfg.Namespace }

// Validate fails fast when any Messenger credential is missing.
func (a *Adapter) Validate() error {
	switch {
	case a.cfg.VerifyToken == "":
		return &domain.ConfigError{Adapter: "facebook", Field: "verify_token"}
	case a.cfg.AccessToken == "":
		return &domain.ConfigError{Adapter: "facebook", Field: "access_token"}
	case a.cfg.AppSecret == "":
		return &domain.ConfigError{Adapter: "facebook", Field: "app_secret"}
	}
	return nil
}

// --- Inbound ---

// HandleWebhook drives the Messenger webhook state machine: the subscribe
// handshake first, then signature verification over the raw body bytes,
// then the page event batch.
func (a *Adapter) HandleWebhook(c *client.Client, w http.ResponseWriter, r *http.Request, rawBody []byte) {
	if r.URL.Query().Get("hub.mode") == "subscribe" {
		a.handleSubscription(c, w, r)
		return
	}

	if err := a.verifySignature(r.Header.Get("x-hub-signature"), rawBody); err != nil {
		c.Logger().Warn("facebook webhook rejected", "err", err)
		httpapi.Error(w, http.StatusUnauthorized, err.Error())
		return
	}

	a.handleEventBatch(c, w, r, rawBody)
}

// handleSubscription answers the platform verification handshake: echo the
// challenge on a token match, 403 otherwise.
func (a *Adapter) handleSubscription(c *client.Client, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.verify_token") != a.cfg.VerifyToken {
		c.Logger().Warn("facebook webhook verification failed")
		httpapi.Error(w, http.StatusForbidden, "verify token mismatch")
		return
	}
	c.Logger().Info("facebook webhook verified")
	w.WriteHeader(http.StatusOK)
	// The challenge is opaque; it must round-trip byte for byte.
	fmt.Fprint(w, q.Get("hub.challenge"))
}

// verifySignature checks the x-hub-signature header: an HMAC-SHA1 hex
// digest of the raw body under the app secret. A reparsed body would not
// reproduce the digest, which is why rawBody arrives unparsed.
func (a *Adapter) verifySignature(signature string, rawBody []byte) error {
	if signature == "" {
		return &domain.AuthError{Reason: "missing x-hub-signature"}
	}
	_, sigHash, ok := strings.Cut(signature, "=")
	if !ok {
		return &domain.AuthError{Reason: "malformed x-hub-signature"}
	}

	mac := hmac.New(sha1.New, []byte(a.cfg.AppSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sigHash), []byte(expected)) {
		return &domain.AuthError{Reason: "wrong signature"}
	}
	return nil
}

// handleEventBatch flattens entry[].messaging[] into one ordered sequence.
// Events without a message field are logged and mark the response 400, but
// the rest of the batch still runs.
func (a *Adapter) handleEventBatch(c *client.Client, w http.ResponseWriter, r *http.Request, rawBody []byte) {
	var body webhookBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		httpapi.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Object != "page" {
		httpapi.Error(w, http.StatusBadRequest, "unexpected webhook object")
		return
	}

	status := http.StatusOK
	var dispatchErr *domain.DispatchError
	for _, entry := range body.Entry {
		for i := range entry.Messaging {
			ev := &entry.Messaging[i]
			if ev.Message == nil {
				c.Logger().Error("facebook webhook received unknown messaging event",
					"sender", ev.Sender.ID)
				status = http.StatusBadRequest
				continue
			}
			if err := c.ReceivedUpdate(r.Context(), ev); err != nil {
				var de *domain.DispatchError
				if errors.As(err, &de) {
					dispatchErr = de
					continue
				}
				c.Logger().Error("facebook update dispatch failed", "err", err)
			}
		}
	}

	if dispatchErr != nil {
		httpapi.Error(w, http.StatusInternalServerError, dispatchErr.Error())
		return
	}
	w.WriteHeader(status)
}

// FormatUpdate wraps one messaging event, keeping the raw event reachable
// and deriving the normalized envelope from it.
func (a *Adapter) FormatUpdate(raw any) (*domain.Update, error) {
	ev, ok := raw.(*MessagingEvent)
	if !ok {
		return nil, fmt.Errorf("facebook: unexpected raw update type %T", raw)
	}

	update := &domain.Update{
		Raw:       ev,
		Sender:    domain.Party{ID: ev.Sender.ID},
		Recipient: domain.Party{ID: ev.Recipient.ID},
		Timestamp: ev.Timestamp,
	}
	if ev.Message != nil {
		update.Message = domain.IncomingMessage{
			MID:  ev.Message.MID,
			Seq:  ev.Message.Seq,
			Text: ev.Message.Text,
		}
		for _, att := range ev.Message.Attachments {
			update.Message.Attachments = append(update.Message.Attachments, domain.Attachment{
				Type:    att.Type,
				Payload: domain.AttachmentPayload{URL: att.Payload.URL},
			})
		}
	}
	if update.Message.MID == "" {
		update.Message.MID = uuid.NewString()
	}
	return update, nil
}

// --- Outbound ---

// SendTransport posts the message to the Graph send endpoint. Messenger
// signals failure in-band, so an error-shaped response body is a rejection
// even under HTTP 200.
func (a *Adapter) SendTransport(ctx context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("facebook: marshal message: %w", err)
	}

	body, err := a.graphCall(ctx, http.MethodPost, "/me/messages", payload)
	if err != nil {
		return nil, err
	}

	return &domain.SendResult{
		Raw:         body,
		RecipientID: stringField(body, "recipient_id"),
		MessageID:   stringField(body, "message_id"),
	}, nil
}

// GetUserInfo fetches the user's Messenger profile.
func (a *Adapter) GetUserInfo(ctx context.Context, userID string) (domain.UserInfo, error) {
	body, err := a.graphCall(ctx, http.MethodGet, "/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	return domain.UserInfo(body), nil
}

// graphCall performs one Graph API request with the access token as a
// query credential and surfaces in-band error payloads as transport errors.
func (a *Adapter) graphCall(ctx context.Context, method, path string, payload []byte) (map[string]any, error) {
	uri := fmt.Sprintf("%s%s?access_token=%s", a.cfg.GraphURI, path, url.QueryEscape(a.cfg.AccessToken))

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return nil, fmt.Errorf("facebook: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Platform: "facebook", Err: err}
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &domain.TransportError{Platform: "facebook", Err: fmt.Errorf("decode response: %w", err)}
	}
	if errPayload, ok := body["error"]; ok && errPayload != nil {
		detail, _ := json.Marshal(errPayload)
		return nil, &domain.TransportError{Platform: "facebook", Detail: string(detail)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Platform: "facebook",
			Detail:   fmt.Sprintf("graph API status %d", resp.StatusCode),
		}
	}
	return body, nil
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

// --- Wire types ---

type webhookBody struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is one element of a page webhook's messaging batch.
type MessagingEvent struct {
	Sender    party             `json:"sender"`
	Recipient party             `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *messengerMessage `json:"message,omitempty"`
}

type party struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	MID         string                `json:"mid"`
	Seq         *int64                `json:"seq"`
	Text        string                `json:"text"`
	Attachments []messengerAttachment `json:"attachments"`
}

type messengerAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}
