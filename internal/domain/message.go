package domain

import "context"

// Update is the normalized representation of one inbound message or event,
// whatever platform it came from. Sender and Recipient IDs are opaque
// strings; nothing outside the adapter that produced them may assume a
// numeric or platform-specific shape.
type Update struct {
	Raw       any             `json:"raw,omitempty"`
	Sender    Party           `json:"sender"`
	Recipient Party           `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   IncomingMessage `json:"message"`
}

// Party identifies one side of a conversation.
type Party struct {
	ID string `json:"id"`
}

// IncomingMessage carries the content of an inbound update. MID is
// platform-unique; adapters synthesize one when the platform has no
// message-id concept. Seq is nil on platforms without sequence numbers.
type IncomingMessage struct {
	MID         string       `json:"mid"`
	Seq         *int64       `json:"seq"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a typed media reference.
type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL string `json:"url"`
}

// QuickReply is one tappable option attached to an outgoing message.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// MaxQuickReplies is the upper bound on quick replies per message.
const MaxQuickReplies = 10

// OutgoingMessage is the normalized outbound envelope. Exactly one primary
// payload kind is allowed per send: text, attachment, quick replies (with an
// optional lead text or attachment) or a sender action.
type OutgoingMessage struct {
	Recipient    Party           `json:"recipient"`
	Message      *MessageContent `json:"message,omitempty"`
	SenderAction string          `json:"sender_action,omitempty"`
}

type MessageContent struct {
	Text         string       `json:"text,omitempty"`
	Attachment   *Attachment  `json:"attachment,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// SenderActionTyping asks the platform to show a typing indicator.
const SenderActionTyping = "typing_on"

// SendResult is the normalized outcome of one send. Fields the platform has
// no equivalent for are zero (a typing indicator has no message id).
type SendResult struct {
	Raw         any    `json:"raw,omitempty"`
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id,omitempty"`
}

// UserInfo is a platform-shaped user profile. Adapters that cannot look
// users up return an empty map.
type UserInfo map[string]any

// Session binds a platform user id to the client that received their
// message. Instances are transient views created per inbound event; the
// context bag behind Context/UpdateContext persists in the owning client
// for the lifetime of the process.
type Session interface {
	UserID() string
	Reply(ctx context.Context, text string) (*SendResult, error)
	SendText(ctx context.Context, text string) (*SendResult, error)
	Context(defaults map[string]any) map[string]any
	UpdateContext(patch map[string]any)
}
