package twitter

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"botbridge/internal/config"
	"botbridge/internal/domain"

	"github.com/dghubble/go-twitter/twitter"
)

func testConfig() config.TwitterConfig {
	return config.TwitterConfig{
		Handle:            "botbridge",
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs",
		AccessToken:       "123-abc",
		AccessTokenSecret: "ats",
	}
}

type fakeStatusUpdater struct {
	statuses []string
	params   []*twitter.StatusUpdateParams
	resp     *twitter.Tweet
	err      error
}

func (f *fakeStatusUpdater) Update(status string, params *twitter.StatusUpdateParams) (*twitter.Tweet, *http.Response, error) {
	f.statuses = append(f.statuses, status)
	f.params = append(f.params, params)
	return f.resp, nil, f.err
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeStatusUpdater) {
	t.Helper()
	a := New(testConfig())
	fake := &fakeStatusUpdater{resp: &twitter.Tweet{IDStr: "900"}}
	a.statuses = fake
	if err := a.Validate(); err != nil {
		t.Fatal(err)
	}
	return a, fake
}

func TestValidate_MissingCredentials(t *testing.T) {
	var ce *domain.ConfigError
	for _, mut := range []func(*config.TwitterConfig){
		func(c *config.TwitterConfig) { c.Handle = "" },
		func(c *config.TwitterConfig) { c.ConsumerKey = "" },
		func(c *config.TwitterConfig) { c.ConsumerSecret = "" },
		func(c *config.TwitterConfig) { c.AccessToken = "" },
		func(c *config.TwitterConfig) { c.AccessTokenSecret = "" },
	} {
		cfg := testConfig()
		mut(&cfg)
		if err := New(cfg).Validate(); !errors.As(err, &ce) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	}
}

func TestValidate_DerivesBotID(t *testing.T) {
	a, _ := newTestAdapter(t)
	if a.botID != "123" {
		t.Errorf("botID = %q, want access token prefix", a.botID)
	}
}

func TestFormatUpdate_TextAndMedia(t *testing.T) {
	a, _ := newTestAdapter(t)
	tweet := &twitter.Tweet{
		IDStr: "700",
		ID:    700,
		Text:  "@botbridge ben &amp; jerry https://t.co/pic",
		User:  &twitter.User{IDStr: "42", ScreenName: "alice"},
		Entities: &twitter.Entities{
			Media: []twitter.MediaEntity{{
				URLEntity:     twitter.URLEntity{URL: "https://t.co/pic"},
				Type:          "photo",
				MediaURLHttps: "https://pbs.example/pic.jpg",
			}},
		},
	}

	u, err := a.FormatUpdate(tweet)
	if err != nil {
		t.Fatal(err)
	}
	if u.Sender.ID != "42" || u.Recipient.ID != "123" {
		t.Errorf("parties = %s -> %s", u.Sender.ID, u.Recipient.ID)
	}
	if u.Message.MID != "700" {
		t.Errorf("mid = %q", u.Message.MID)
	}
	if u.Message.Seq != nil {
		t.Error("tweets carry no sequence number")
	}
	if u.Message.Text != "@botbridge ben & jerry" {
		t.Errorf("text = %q: entities must be unescaped and media links stripped", u.Message.Text)
	}
	if len(u.Message.Attachments) != 1 || u.Message.Attachments[0].Type != "image" ||
		u.Message.Attachments[0].Payload.URL != "https://pbs.example/pic.jpg" {
		t.Errorf("attachments = %+v", u.Message.Attachments)
	}
}

func TestFormatUpdate_NoAuthor(t *testing.T) {
	a, _ := newTestAdapter(t)
	if _, err := a.FormatUpdate(&twitter.Tweet{IDStr: "1"}); err == nil {
		t.Error("tweet without a user must be rejected")
	}
}

func TestBestVideoVariant(t *testing.T) {
	cases := []struct {
		name     string
		variants []twitter.VideoVariant
		want     string
	}{
		{"highest under cap", []twitter.VideoVariant{
			{Bitrate: 320000, URL: "low"},
			{Bitrate: 832000, URL: "mid"},
			{Bitrate: 2176000, URL: "high"},
		}, "mid"},
		{"only above cap picks lowest", []twitter.VideoVariant{
			{Bitrate: 2176000, URL: "high"},
			{Bitrate: 1280000, URL: "lower"},
		}, "lower"},
		{"playlists skipped", []twitter.VideoVariant{
			{Bitrate: 0, URL: "playlist"},
			{Bitrate: 320000, URL: "low"},
		}, "low"},
	}
	for _, tc := range cases {
		if got := bestVideoVariant(tc.variants); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSendTransport_AddressesAndThreads(t *testing.T) {
	a, fake := newTestAdapter(t)
	a.remember(&twitter.Tweet{
		ID:   555,
		User: &twitter.User{IDStr: "42", ScreenName: "alice"},
	})

	res, err := a.SendTransport(context.Background(), &domain.OutgoingMessage{
		Recipient: domain.Party{ID: "42"},
		Message:   &domain.MessageContent{Text: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "900" {
		t.Errorf("message_id = %q", res.MessageID)
	}
	if fake.statuses[0] != "@alice hello" {
		t.Errorf("status = %q", fake.statuses[0])
	}
	if fake.params[0].InReplyToStatusID != 555 {
		t.Errorf("not threaded onto the latest mention: %d", fake.params[0].InReplyToStatusID)
	}
}

func TestSendTransport_TypingResolvesLocally(t *testing.T) {
	a, fake := newTestAdapter(t)
	res, err := a.SendTransport(context.Background(), &domain.OutgoingMessage{
		Recipient:    domain.Party{ID: "42"},
		SenderAction: domain.SenderActionTyping,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.statuses) != 0 {
		t.Error("typing must not post a status")
	}
	raw, ok := res.Raw.(map[string]any)
	if !ok || raw["delivered"] != false {
		t.Errorf("raw = %v", res.Raw)
	}
}

func TestSendTransport_ErrorWraps(t *testing.T) {
	a, fake := newTestAdapter(t)
	fake.err = errors.New("duplicate status")
	_, err := a.SendTransport(context.Background(), &domain.OutgoingMessage{
		Recipient: domain.Party{ID: "42"},
		Message:   &domain.MessageContent{Text: "hello"},
	})
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestFormatOutgoing(t *testing.T) {
	got := formatOutgoing(&domain.MessageContent{
		Text: "pick",
		QuickReplies: []domain.QuickReply{
			{Title: "red"}, {Title: "blue"},
		},
	}, "alice")
	want := "@alice pick\n(Please type in your choice)\nred\nblue"
	if got != want {
		t.Errorf("status = %q, want %q", got, want)
	}

	got = formatOutgoing(&domain.MessageContent{
		Text:       "look",
		Attachment: &domain.Attachment{Type: "image", Payload: domain.AttachmentPayload{URL: "https://x/y.png"}},
	}, "")
	if got != "look https://x/y.png" {
		t.Errorf("status = %q", got)
	}
}
