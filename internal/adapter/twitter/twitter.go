package twitter

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"botbridge/internal/client"
	"botbridge/internal/config"
	"botbridge/internal/domain"
	"botbridge/internal/events"

	"github.com/dghubble/go-twitter/twitter"
	"github.com/dghubble/oauth1"
)

// bestVariantBitrateCap bounds video variant selection: the highest
// bitrate not exceeding the cap wins.
const bestVariantBitrateCap = 832001

// StreamError is the event fired when the mention stream disconnects. The
// adapter does not reconnect on its own; this is a known operational gap
// made observable instead of a silent success.
const StreamError = "stream_error"

type statusUpdater interface {
	Update(status string, params *twitter.StatusUpdateParams) (*twitter.Tweet, *http.Response, error)
}

// Adapter implements Twitter mentions: a long-lived filtered stream in,
// status updates out. The stream's lifetime equals the adapter's.
type Adapter struct {
	cfg       config.TwitterConfig
	botID     string
	statuses  statusUpdater
	stream    *twitter.Stream
	newStream func() (*twitter.Stream, error)

	mu          sync.Mutex
	screenNames map[string]string // user id -> @handle seen on the stream
	lastStatus  map[string]int64  // user id -> latest mention status id
}

// New builds the adapter, filling unset fields from defaults.
func New(cfg config.TwitterConfig) *Adapter {
	if cfg.Namespace == "" {
		cfg.Namespace = "twitter"
	}
	return &Adapter{
		cfg:         cfg,
		screenNames: make(map[string]string),
		lastStatus:  make(map[string]int64),
	}
}

func (a *Adapter) Name() string { return a.cfg.Namespace }

// Validate fails fast unless the full OAuth credential set and the bot
// handle are present, then builds the API client.
func (a *Adapter) Validate() error {
	fields := []struct{ name, value string }{
		{"handle", a.cfg.Handle},
		{"consumer_key", a.cfg.ConsumerKey},
		{"consumer_secret", a.cfg.ConsumerSecret},
		{"access_token", a.cfg.AccessToken},
		{"access_token_secret", a.cfg.AccessTokenSecret},
	}
	for _, f := range fields {
		if f.value == "" {
			return &domain.ConfigError{Adapter: "twitter", Field: f.name}
		}
	}

	// The numeric user id prefixes the access token.
	a.botID, _, _ = strings.Cut(a.cfg.AccessToken, "-")

	if a.statuses == nil {
		oauthCfg := oauth1.NewConfig(a.cfg.ConsumerKey, a.cfg.ConsumerSecret)
		token := oauth1.NewToken(a.cfg.AccessToken, a.cfg.AccessTokenSecret)
		api := twitter.NewClient(oauthCfg.Client(oauth1.NoContext, token))
		a.statuses = api.Statuses
		a.newStream = func() (*twitter.Stream, error) {
			return api.Streams.Filter(&twitter.StreamFilterParams{
				Track:         []string{"@" + a.cfg.Handle},
				StallWarnings: twitter.Bool(true),
			})
		}
	}
	return nil
}

// HandleWebhook exists to satisfy the adapter contract; Twitter delivers
// through the stream, not webhooks.
func (a *Adapter) HandleWebhook(_ *client.Client, w http.ResponseWriter, _ *http.Request, _ []byte) {
	http.Error(w, "Not Found", http.StatusNotFound)
}

// Start opens the filtered mention stream and dispatches every tweet until
// ctx is cancelled or the stream dies.
func (a *Adapter) Start(ctx context.Context, c *client.Client) error {
	stream, err := a.newStream()
	if err != nil {
		return &domain.TransportError{Platform: "twitter", Err: err}
	}
	a.stream = stream
	c.Logger().Info("twitter mention stream open", "handle", a.cfg.Handle)

	demux := twitter.NewSwitchDemux()
	demux.Tweet = func(tweet *twitter.Tweet) {
		if tweet.User != nil && tweet.User.IDStr == a.botID {
			return // the bot's own statuses come back on the stream
		}
		a.remember(tweet)
		if err := c.ReceivedUpdate(ctx, tweet); err != nil {
			c.Logger().Error("twitter update dispatch failed", "err", err)
		}
	}
	demux.StreamDisconnect = func(d *twitter.StreamDisconnect) {
		c.Logger().Error("twitter stream disconnected", "reason", d.Reason)
		a.notifyStreamError(ctx, c, d.Reason)
	}

	done := make(chan struct{})
	go func() {
		demux.HandleChan(stream.Messages)
		close(done)
	}()

	select {
	case <-ctx.Done():
		stream.Stop()
		<-done
		return nil
	case <-done:
		a.notifyStreamError(ctx, c, "stream closed")
		return &domain.TransportError{Platform: "twitter", Detail: "mention stream closed"}
	}
}

// Stop closes the stream.
func (a *Adapter) Stop() error {
	if a.stream != nil {
		a.stream.Stop()
	}
	return nil
}

func (a *Adapter) notifyStreamError(ctx context.Context, c *client.Client, reason string) {
	err := c.Events().Trigger(ctx, events.Event{
		Name:     StreamError,
		Category: events.CategoryEvent,
		Data:     map[string]any{"reason": reason},
	})
	if err != nil {
		c.Logger().Warn("stream error not handled", "err", err)
	}
}

func (a *Adapter) remember(tweet *twitter.Tweet) {
	if tweet.User == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.screenNames[tweet.User.IDStr] = tweet.User.ScreenName
	a.lastStatus[tweet.User.IDStr] = tweet.ID
}

// FormatUpdate normalizes one mention tweet: text with media links
// stripped, attachments from the media entities.
func (a *Adapter) FormatUpdate(raw any) (*domain.Update, error) {
	tweet, ok := raw.(*twitter.Tweet)
	if !ok {
		return nil, fmt.Errorf("twitter: unexpected raw update type %T", raw)
	}
	if tweet.User == nil {
		return nil, fmt.Errorf("twitter: tweet %s has no author", tweet.IDStr)
	}

	ts := time.Now().UnixMilli()
	if created, err := tweet.CreatedAtTime(); err == nil {
		ts = created.UnixMilli()
	}

	update := &domain.Update{
		Raw:       tweet,
		Sender:    domain.Party{ID: tweet.User.IDStr},
		Recipient: domain.Party{ID: a.botID},
		Timestamp: ts,
		Message: domain.IncomingMessage{
			MID:  tweet.IDStr,
			Seq:  nil, // no sequence concept on this platform
			Text: incomingText(tweet),
		},
	}
	update.Message.Attachments = incomingAttachments(mediaEntities(tweet))
	return update, nil
}

func incomingText(tweet *twitter.Tweet) string {
	text := html.UnescapeString(tweet.Text)
	for _, m := range mediaEntities(tweet) {
		text = strings.ReplaceAll(text, " "+m.URL, "")
	}
	return text
}

func mediaEntities(tweet *twitter.Tweet) []twitter.MediaEntity {
	if tweet.ExtendedEntities != nil && len(tweet.ExtendedEntities.Media) > 0 {
		return tweet.ExtendedEntities.Media
	}
	if tweet.Entities != nil {
		return tweet.Entities.Media
	}
	return nil
}

func incomingAttachments(media []twitter.MediaEntity) []domain.Attachment {
	var out []domain.Attachment
	for _, m := range media {
		var att domain.Attachment
		switch m.Type {
		case "photo":
			att = domain.Attachment{Type: "image", Payload: domain.AttachmentPayload{URL: m.MediaURLHttps}}
		case "video", "animated_gif":
			// Twitter serves gifs as videos, so both normalize to video.
			att = domain.Attachment{Type: "video", Payload: domain.AttachmentPayload{URL: bestVideoVariant(m.VideoInfo.Variants)}}
		default:
			continue
		}
		out = append(out, att)
	}
	return out
}

// bestVideoVariant picks the highest-bitrate variant under the cap,
// skipping variants with no bitrate (HLS playlists).
func bestVideoVariant(variants []twitter.VideoVariant) string {
	bestURL := ""
	bestBitrate := -1
	for _, v := range variants {
		if v.Bitrate == 0 {
			continue
		}
		better := (bestBitrate > bestVariantBitrateCap && v.Bitrate < bestBitrate) ||
			(v.Bitrate > bestBitrate && v.Bitrate < bestVariantBitrateCap) ||
			bestBitrate == -1
		if better {
			bestBitrate = v.Bitrate
			bestURL = v.URL
		}
	}
	return bestURL
}

// SendTransport posts a status addressed conversationally to the recipient,
// threaded onto their latest mention when one is known. Sender actions
// resolve locally; the platform has no typing indicator.
func (a *Adapter) SendTransport(_ context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	if msg.SenderAction != "" {
		return &domain.SendResult{
			Raw:         map[string]any{"delivered": false},
			RecipientID: msg.Recipient.ID,
		}, nil
	}

	a.mu.Lock()
	screenName := a.screenNames[msg.Recipient.ID]
	inReplyTo := a.lastStatus[msg.Recipient.ID]
	a.mu.Unlock()

	status := formatOutgoing(msg.Message, screenName)
	params := &twitter.StatusUpdateParams{}
	if inReplyTo != 0 {
		params.InReplyToStatusID = inReplyTo
	}

	tweet, _, err := a.statuses.Update(status, params)
	if err != nil {
		return nil, &domain.TransportError{Platform: "twitter", Err: err}
	}

	result := &domain.SendResult{Raw: tweet, RecipientID: msg.Recipient.ID}
	if tweet != nil {
		result.MessageID = tweet.IDStr
	}
	return result, nil
}

// formatOutgoing flattens the normalized content into status text: the
// attachment URL rides in the text and quick replies become a typed-choice
// list, since statuses carry neither media objects nor buttons here.
func formatOutgoing(m *domain.MessageContent, screenName string) string {
	var b strings.Builder
	if screenName != "" {
		fmt.Fprintf(&b, "@%s ", screenName)
	}
	b.WriteString(m.Text)
	if m.Attachment != nil {
		if b.Len() > 0 && m.Text != "" {
			b.WriteString(" ")
		}
		b.WriteString(m.Attachment.Payload.URL)
	}
	if len(m.QuickReplies) > 0 {
		b.WriteString("\n(Please type in your choice)")
		for _, qr := range m.QuickReplies {
			b.WriteString("\n" + qr.Title)
		}
	}
	return b.String()
}
