package client

import (
	"context"
	"errors"
	"testing"

	"botbridge/internal/domain"
)

func textMessage(recipient, text string) *domain.OutgoingMessage {
	return &domain.OutgoingMessage{
		Recipient: domain.Party{ID: recipient},
		Message:   &domain.MessageContent{Text: text},
	}
}

func TestPipeline_Order(t *testing.T) {
	p := &Pipeline{}
	p.Use(func(ctx context.Context, m *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
		out := *m
		out.Message = &domain.MessageContent{Text: m.Message.Text + "-a"}
		return &out, nil
	})
	p.Use(func(ctx context.Context, m *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
		out := *m
		out.Message = &domain.MessageContent{Text: m.Message.Text + "-b"}
		return &out, nil
	})

	out, err := p.Run(context.Background(), textMessage("u1", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Message.Text != "x-a-b" {
		t.Errorf("steps ran out of order: %s", out.Message.Text)
	}
}

func TestPipeline_ShortCircuit(t *testing.T) {
	p := &Pipeline{}
	wantErr := errors.New("rejected")
	ran := false
	p.Use(func(ctx context.Context, m *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
		return nil, wantErr
	})
	p.Use(func(ctx context.Context, m *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
		ran = true
		return m, nil
	})

	_, err := p.Run(context.Background(), textMessage("u1", "x"))
	if !errors.Is(err, wantErr) {
		t.Errorf("expected step error, got %v", err)
	}
	if ran {
		t.Error("rejection must stop remaining steps")
	}
}

func TestValidateOutgoing(t *testing.T) {
	cases := []struct {
		name string
		msg  *domain.OutgoingMessage
		ok   bool
	}{
		{"text", textMessage("u1", "hi"), true},
		{"attachment", &domain.OutgoingMessage{
			Recipient: domain.Party{ID: "u1"},
			Message: &domain.MessageContent{
				Attachment: &domain.Attachment{Type: "image", Payload: domain.AttachmentPayload{URL: "https://x/y.png"}},
			},
		}, true},
		{"sender action", &domain.OutgoingMessage{
			Recipient:    domain.Party{ID: "u1"},
			SenderAction: domain.SenderActionTyping,
		}, true},
		{"quick replies with lead text", &domain.OutgoingMessage{
			Recipient: domain.Party{ID: "u1"},
			Message: &domain.MessageContent{
				Text:         "pick",
				QuickReplies: []domain.QuickReply{{ContentType: "text", Title: "A", Payload: "A"}},
			},
		}, true},
		{"no recipient", textMessage("", "hi"), false},
		{"no payload", &domain.OutgoingMessage{Recipient: domain.Party{ID: "u1"}}, false},
		{"empty message", &domain.OutgoingMessage{
			Recipient: domain.Party{ID: "u1"},
			Message:   &domain.MessageContent{},
		}, false},
		{"text and attachment", &domain.OutgoingMessage{
			Recipient: domain.Party{ID: "u1"},
			Message: &domain.MessageContent{
				Text:       "hi",
				Attachment: &domain.Attachment{Type: "image"},
			},
		}, false},
		{"action and message", &domain.OutgoingMessage{
			Recipient:    domain.Party{ID: "u1"},
			SenderAction: domain.SenderActionTyping,
			Message:      &domain.MessageContent{Text: "hi"},
		}, false},
	}

	for _, tc := range cases {
		_, err := ValidateOutgoing(context.Background(), tc.msg)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			}
		}
	}
}

func TestValidateOutgoing_TooManyQuickReplies(t *testing.T) {
	msg := &domain.OutgoingMessage{
		Recipient: domain.Party{ID: "u1"},
		Message:   &domain.MessageContent{Text: "pick"},
	}
	for i := 0; i < 11; i++ {
		msg.Message.QuickReplies = append(msg.Message.QuickReplies, domain.QuickReply{
			ContentType: "text", Title: "t", Payload: "t",
		})
	}
	if _, err := ValidateOutgoing(context.Background(), msg); err == nil {
		t.Error("11 quick replies must be rejected")
	}
}
