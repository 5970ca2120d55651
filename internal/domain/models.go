// Package domain defines the records that flow through the messaging gateway:
// normalized Telegram updates, logged interactions, retry-queue items, the
// externally owned User, and the locally persisted Delivery ledger row.
package domain

import (
	"encoding/json"
	"time"
)

// NonTextSentinel replaces the text of updates that carry no text, caption,
// or callback data (stickers, locations, voice notes...).
const NonTextSentinel = "[non-text message]"

// Interaction directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// RetryTypeInteraction is the only RetryItem type the queue knows how to replay.
const RetryTypeInteraction = "interaction"

// ChatInfo carries the display fields of the Telegram chat/from block that
// are forwarded to the User Service on registration.
type ChatInfo struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	UserName  string `json:"username,omitempty"`
}

// DisplayName joins first and last name, falling back to the username.
// It returns "" when nothing is known.
func (c ChatInfo) DisplayName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	case c.LastName != "":
		return c.LastName
	default:
		return c.UserName
	}
}

// Update is the canonical form of one inbound Telegram webhook call.
//
// Fields:
//   - ChatID / SenderID: zero means "absent"; downstream stages require both.
//   - Text: message text, caption, callback data, or NonTextSentinel.
//   - MessageID: Telegram message id (per chat), zero when absent.
//   - IsCommand / Command: set when Text starts with '/'.
//   - Raw: the untouched webhook body, logged as interaction metadata.
//   - CorrelationID: fresh id used to tie logs of this update together.
type Update struct {
	ChatID        int64
	SenderID      int64
	Text          string
	MessageID     int64
	IsCommand     bool
	Command       string
	IsCallback    bool
	Chat          ChatInfo
	Raw           json.RawMessage
	CorrelationID string
}

// Valid reports whether the update identifies both a chat and a sender.
func (u Update) Valid() bool { return u.ChatID != 0 && u.SenderID != 0 }

// User is the User Service's view of an end user. It is never stored locally.
type User struct {
	ID         string  `json:"id"`
	TelegramID *int64  `json:"telegram_id,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	Email      *string `json:"email,omitempty"`
}

// Interaction is one logged leg (inbound or outbound) of a conversation turn.
// JSON names follow the User Service contract and the retry file format.
type Interaction struct {
	ID                string          `json:"id,omitempty"`
	UserID            string          `json:"user_id"`
	TelegramMessageID *int64          `json:"telegram_message_id"`
	Direction         string          `json:"direction"`
	MessageText       string          `json:"message_text"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
}

// RetryItem is one line of the retry queue file.
type RetryItem struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewInteractionRetry wraps an interaction into a RetryItem.
func NewInteractionRetry(in Interaction) (RetryItem, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return RetryItem{}, err
	}
	return RetryItem{Type: RetryTypeInteraction, Payload: b}, nil
}
