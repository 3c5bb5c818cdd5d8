package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"botbridge/internal/client"
	"botbridge/internal/config"
	"botbridge/internal/domain"
	"botbridge/internal/httpapi"

	"github.com/google/uuid"
	twiliosdk "github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageAPI is the slice of the Twilio SDK the adapter depends on, so
// tests can stand in for the REST client.
type messageAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// Adapter implements SMS over Twilio: single-shot webhook in, REST API out.
type Adapter struct {
	cfg config.TwilioConfig
	api messageAPI
}

// New builds the adapter, filling unset fields from defaults. The SDK
// client is constructed lazily in Validate so a misconfigured adapter never
// holds one.
func New(cfg config.TwilioConfig) *Adapter {
	if cfg.Namespace == "" {
		cfg.Namespace = "twilio"
	}
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return a.cfg.Namespace }

// Validate fails fast unless account SID, auth token and phone number are
// all present, then builds the REST client.
func (a *Adapter) Validate() error {
	switch {
	case a.cfg.AccountSID == "":
		return &domain.ConfigError{Adapter: "twilio", Field: "account_sid"}
	case a.cfg.AuthToken == "":
		return &domain.ConfigError{Adapter: "twilio", Field: "auth_token"}
	case a.cfg.PhoneNumber == "":
		return &domain.ConfigError{Adapter: "twilio", Field: "phone_number"}
	}
	if a.api == nil {
		rest := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
			Username: a.cfg.AccountSID,
			Password: a.cfg.AuthToken,
		})
		a.api = rest.Api
	}
	return nil
}

// InboundSMS is one parsed webhook call.
type InboundSMS struct {
	From       string
	Body       string
	MessageSID string
	Values     url.Values
}

// HandleWebhook maps one POST to exactly one update and acknowledges with a
// bare 200; Twilio treats the response itself as the receipt, so no success
// envelope is written. An update nobody is registered to handle is answered
// with an explicit error instead of a silent ack.
func (a *Adapter) HandleWebhook(c *client.Client, w http.ResponseWriter, r *http.Request, rawBody []byte) {
	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		c.Logger().Warn("twilio webhook with unparsable body", "err", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	// Query parameters merge under the form body.
	for key, vals := range r.URL.Query() {
		if form.Get(key) == "" && len(vals) > 0 {
			form.Set(key, vals[0])
		}
	}

	sms := &InboundSMS{
		From:       form.Get("From"),
		Body:       form.Get("Body"),
		MessageSID: form.Get("MessageSid"),
		Values:     form,
	}
	if sms.From == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := c.ReceivedUpdate(r.Context(), sms); err != nil {
		c.Logger().Error("twilio update dispatch failed", "err", err)
		var de *domain.DispatchError
		if errors.As(err, &de) {
			httpapi.Error(w, http.StatusInternalServerError, de.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// FormatUpdate normalizes one inbound SMS.
func (a *Adapter) FormatUpdate(raw any) (*domain.Update, error) {
	sms, ok := raw.(*InboundSMS)
	if !ok {
		return nil, fmt.Errorf("twilio: unexpected raw update type %T", raw)
	}

	mid := sms.MessageSID
	if mid == "" {
		mid = uuid.NewString()
	}
	return &domain.Update{
		Raw:       sms,
		Sender:    domain.Party{ID: sms.From},
		Recipient: domain.Party{ID: a.cfg.PhoneNumber},
		Timestamp: time.Now().UnixMilli(),
		Message: domain.IncomingMessage{
			MID:  mid,
			Text: sms.Body,
		},
	}, nil
}

// SendTransport sends an SMS through the REST API. Sender actions are a
// successful no-op since SMS has no typing indicator; quick replies render
// as a numbered list because SMS has no buttons.
func (a *Adapter) SendTransport(_ context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	if msg.SenderAction != "" {
		return &domain.SendResult{RecipientID: msg.Recipient.ID}, nil
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(msg.Recipient.ID)
	params.SetFrom(a.cfg.PhoneNumber)
	params.SetBody(renderBody(msg.Message))
	if msg.Message.Attachment != nil && msg.Message.Attachment.Payload.URL != "" {
		params.SetMediaUrl([]string{msg.Message.Attachment.Payload.URL})
	}

	resp, err := a.api.CreateMessage(params)
	if err != nil {
		return nil, &domain.TransportError{Platform: "twilio", Err: err}
	}

	result := &domain.SendResult{Raw: resp, RecipientID: msg.Recipient.ID}
	if resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	return result, nil
}

func renderBody(m *domain.MessageContent) string {
	if len(m.QuickReplies) == 0 {
		return m.Text
	}
	var b strings.Builder
	b.WriteString(m.Text)
	for i, qr := range m.QuickReplies {
		fmt.Fprintf(&b, "\n%d) %s", i+1, qr.Title)
	}
	return b.String()
}
