// Package telegram adapts the Telegram Bot API to the gateway: it turns raw
// webhook bodies into domain.Update values and sends replies back.
package telegram

import (
	"encoding/json"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
)

// Normalize parses a webhook body into a canonical Update. It never fails:
// a body that is not a Telegram update yields an Update with zero ids, which
// callers reject through Update.Valid.
func Normalize(raw []byte) domain.Update {
	u := domain.Update{
		Raw:           json.RawMessage(append([]byte(nil), raw...)),
		CorrelationID: uuid.NewString(),
	}

	var upd tgbotapi.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return u
	}

	msg := upd.Message
	if msg == nil {
		msg = upd.EditedMessage
	}
	if msg == nil && upd.CallbackQuery != nil {
		msg = upd.CallbackQuery.Message
		u.IsCallback = true
	}

	var from *tgbotapi.User
	if msg != nil {
		u.MessageID = int64(msg.MessageID)
		if msg.Chat != nil {
			u.ChatID = msg.Chat.ID
			u.Chat = domain.ChatInfo{
				FirstName: msg.Chat.FirstName,
				LastName:  msg.Chat.LastName,
				UserName:  msg.Chat.UserName,
			}
		}
		from = msg.From
	}
	// On a callback the attached message was sent by the bot; the user who
	// pressed the button is callback_query.from.
	if upd.CallbackQuery != nil && (u.IsCallback || from == nil) && upd.CallbackQuery.From != nil {
		from = upd.CallbackQuery.From
	}
	if from == nil {
		var top struct {
			From *tgbotapi.User `json:"from"`
		}
		if json.Unmarshal(raw, &top) == nil {
			from = top.From
		}
	}
	if from != nil {
		u.SenderID = from.ID
		if u.Chat == (domain.ChatInfo{}) {
			u.Chat = domain.ChatInfo{FirstName: from.FirstName, LastName: from.LastName, UserName: from.UserName}
		}
	}
	if u.ChatID == 0 {
		u.ChatID = u.SenderID
	}

	u.Text = extractText(msg, upd.CallbackQuery, u.IsCallback)
	if strings.HasPrefix(u.Text, "/") {
		u.IsCommand = true
		u.Command = strings.Fields(u.Text)[0]
	}
	return u
}

// extractText picks message text, then caption, then callback data, and
// falls back to domain.NonTextSentinel. For callbacks the pressed button's
// data comes first, since the attached message text is the bot's own.
func extractText(msg *tgbotapi.Message, cb *tgbotapi.CallbackQuery, isCallback bool) string {
	if isCallback && cb.Data != "" {
		return cb.Data
	}
	if msg != nil {
		if msg.Text != "" {
			return msg.Text
		}
		if msg.Caption != "" {
			return msg.Caption
		}
	}
	if cb != nil && cb.Data != "" {
		return cb.Data
	}
	return domain.NonTextSentinel
}
