package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-messaging-gateway/internal/observability"
)

// MaxMessageRunes is Telegram's limit for one text message.
const MaxMessageRunes = 4096

// Kind classifies a delivery failure.
type Kind int

const (
	// KindRetryable covers 5xx, 429, transport failures and undecodable
	// responses: the same request may succeed later.
	KindRetryable Kind = iota + 1
	// KindClient covers the remaining 4xx answers: resending will not help.
	KindClient
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Op     string
	Status int // Bot API error_code, else the HTTP status of a failed answer, else 0
	Detail string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("telegram %s: %d %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("telegram %s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool { return e.Kind == KindRetryable }

// Client sends messages and manages the webhook through the Bot API. It does
// not retry; callers decide based on Error.Kind.
type Client struct {
	token    string
	endpoint string
	hc       *http.Client
}

// NewClient returns a Client for token. endpoint is a Bot API URL pattern
// with two %s verbs (token, method); empty selects the public API. A nil hc
// uses http.DefaultClient.
func NewClient(token, endpoint string, hc *http.Client) *Client {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{token: token, endpoint: endpoint, hc: hc}
}

// ctxDoer binds a context to requests built by tgbotapi, which has no
// context-aware API of its own. It keeps the last HTTP status so errors from
// bodies tgbotapi cannot decode still carry it.
type ctxDoer struct {
	ctx    context.Context
	hc     *http.Client
	status *int
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.hc.Do(req.WithContext(d.ctx))
	if err == nil {
		*d.status = resp.StatusCode
	}
	return resp, err
}

// call is one Bot API interaction: a BotAPI bound to ctx plus the HTTP
// status of its most recent response.
type call struct {
	*tgbotapi.BotAPI
	status *int
}

// bot builds a BotAPI bound to ctx. It is a plain struct literal so no getMe
// round trip happens on construction.
func (c *Client) bot(ctx context.Context) call {
	status := new(int)
	b := &tgbotapi.BotAPI{Token: c.token, Client: ctxDoer{ctx: ctx, hc: c.hc, status: status}}
	b.SetAPIEndpoint(c.endpoint)
	return call{BotAPI: b, status: status}
}

// Send delivers text to chatID as plain text. Text longer than
// MaxMessageRunes goes out as consecutive messages; the first failure stops
// the sequence.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	tr := otel.Tracer("telegram/Client")
	ctx, span := tr.Start(ctx, "Send", trace.WithAttributes(attribute.Int64("chat.id", chatID)))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return &Error{Op: "sendMessage", Detail: "message text is empty", Kind: KindClient}
	}
	chunks := SplitText(text, MaxMessageRunes)
	span.SetAttributes(attribute.Int("message.parts", len(chunks)))
	b := c.bot(ctx)
	for _, part := range chunks {
		*b.status = 0
		_, err := b.Request(tgbotapi.NewMessage(chatID, part))
		if err = classify("sendMessage", *b.status, err); err != nil {
			span.RecordError(err)
			observability.ObserveCall("telegram", "sendMessage", err)
			return err
		}
	}
	observability.ObserveCall("telegram", "sendMessage", nil)
	return nil
}

// SendTyping shows the "typing…" indicator in chatID.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	b := c.bot(ctx)
	_, err := b.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	err = classify("sendChatAction", *b.status, err)
	observability.ObserveCall("telegram", "sendChatAction", err)
	return err
}

// SetWebhook registers url as the update endpoint. A non-empty secret is
// echoed back by Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	b := c.bot(ctx)
	_, err := b.MakeRequest("setWebhook", params)
	err = classify("setWebhook", *b.status, err)
	observability.ObserveCall("telegram", "setWebhook", err)
	return err
}

// ClearWebhook removes the registered webhook.
func (c *Client) ClearWebhook(ctx context.Context) error {
	b := c.bot(ctx)
	_, err := b.Request(tgbotapi.DeleteWebhookConfig{})
	err = classify("deleteWebhook", *b.status, err)
	observability.ObserveCall("telegram", "deleteWebhook", err)
	return err
}

// classify maps a tgbotapi error onto *Error. httpStatus is the status of
// the response, 0 when none arrived. nil stays nil.
func classify(op string, httpStatus int, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var v tgbotapi.Error
		if errors.As(err, &v) {
			apiErr = &v
		}
	}
	if apiErr == nil {
		// Transport failure, canceled context or a body that is not a Bot
		// API response.
		e := &Error{Op: op, Detail: err.Error(), Kind: KindRetryable, Err: err}
		if httpStatus >= http.StatusMultipleChoices {
			e.Status = httpStatus
		}
		return e
	}
	kind := KindRetryable
	if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		kind = KindClient
	}
	return &Error{Op: op, Status: apiErr.Code, Detail: apiErr.Message, Kind: kind, Err: err}
}

// SplitText cuts text into parts of at most limit runes, preferring to break
// after the last newline of each window.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
