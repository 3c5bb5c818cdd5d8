package client

import (
	"context"

	"botbridge/internal/domain"
)

// Step is one outgoing transformation. It receives a message and returns
// the message to hand to the next step; the first error short-circuits the
// chain and fails the enclosing send. A step that cannot guarantee its
// result is still well formed must return a new value instead of mutating
// the input.
type Step func(ctx context.Context, msg *domain.OutgoingMessage) (*domain.OutgoingMessage, error)

// Pipeline is the strictly ordered chain of steps every outbound message
// passes through before its transport call. It is the single extension seam
// for cross-cutting outbound concerns.
type Pipeline struct {
	steps []Step
}

// Use appends a step. Steps run in registration order.
func (p *Pipeline) Use(step Step) {
	p.steps = append(p.steps, step)
}

// Run passes msg through every step in order.
func (p *Pipeline) Run(ctx context.Context, msg *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
	var err error
	for _, step := range p.steps {
		msg, err = step(ctx, msg)
		if err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// ValidateOutgoing enforces the outgoing message contract: a recipient, and
// exactly one primary payload kind (text, attachment, quick replies or a
// sender action; quick replies may carry a lead text or attachment). It is
// installed as the first step of every client's pipeline so violations fail
// before any transport I/O.
func ValidateOutgoing(_ context.Context, msg *domain.OutgoingMessage) (*domain.OutgoingMessage, error) {
	if msg.Recipient.ID == "" {
		return nil, &domain.ValidationError{Reason: "outgoing message has no recipient id"}
	}
	if msg.SenderAction != "" {
		if msg.Message != nil {
			return nil, &domain.ValidationError{Reason: "sender_action and message are mutually exclusive"}
		}
		return msg, nil
	}
	m := msg.Message
	if m == nil {
		return nil, &domain.ValidationError{Reason: "outgoing message has no payload"}
	}
	if m.Text == "" && m.Attachment == nil && len(m.QuickReplies) == 0 {
		return nil, &domain.ValidationError{Reason: "outgoing message has no payload"}
	}
	if m.Text != "" && m.Attachment != nil {
		return nil, &domain.ValidationError{Reason: "text and attachment are mutually exclusive"}
	}
	if len(m.QuickReplies) > domain.MaxQuickReplies {
		return nil, &domain.ValidationError{Reason: "quick_replies must be of length 10 or less"}
	}
	return msg, nil
}
