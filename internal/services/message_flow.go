// Package services – MessageFlow
//
// MessageFlow is the per-update pipeline of the gateway:
//
//  1. normalize the webhook body (no sender or chat: done)
//  2. process-local dedupe on chat:message (duplicate: done)
//  3. resolve the user, registering on a miss (failure: done)
//  4. history dedupe against the User Service (already logged: done)
//  5. log the inbound interaction (failure is queued by the client)
//  6. typing indicator, then ask the agent (failure: fixed apology)
//  7. log the outbound interaction
//  8. deliver the reply and record the outcome in the ledger
//
// Every stage owns its failures. Nothing past stage 2 reaches the webhook
// handler; the handler always acknowledges Telegram.
//
// Observability: each stage runs in an OpenTelemetry span and logs through
// the correlation-scoped context logger.
package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-messaging-gateway/internal/clients"
	"github.com/tbourn/go-messaging-gateway/internal/dedupe"
	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/observability"
	"github.com/tbourn/go-messaging-gateway/internal/telegram"
	"github.com/tbourn/go-messaging-gateway/internal/worker"
)

// ReplyAgentUnavailable is sent when the Agent Service call fails.
const ReplyAgentUnavailable = "The agent is busy right now, please try again later."

// DefaultHistoryLimit is how many recent interactions the history dedupe scans.
const DefaultHistoryLimit = 30

// FlowMode selects how much of the pipeline runs before the webhook is
// acknowledged.
type FlowMode string

const (
	// FlowDeferred runs stages 1-2 inline and 3-8 in the background.
	FlowDeferred FlowMode = "deferred"
	// FlowResolveFirst runs stages 1-5 inline and 6-8 in the background.
	FlowResolveFirst FlowMode = "resolve_first"
)

// ParseFlowMode maps a config value onto a FlowMode.
func ParseFlowMode(s string) (FlowMode, error) {
	switch FlowMode(s) {
	case "", FlowDeferred:
		return FlowDeferred, nil
	case FlowResolveFirst:
		return FlowResolveFirst, nil
	default:
		return "", ErrUnknownFlowMode
	}
}

// Outcome tells the webhook handler what happened to an update. It never
// changes the HTTP answer.
type Outcome string

const (
	OutcomeInvalid          Outcome = "invalid"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeHistoryDuplicate Outcome = "history_duplicate"
	OutcomeUnresolved       Outcome = "unresolved"
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejected         Outcome = "rejected"
)

// UserDirectory is the subset of the User Service the flow uses.
type UserDirectory interface {
	GetUserByPlatformID(ctx context.Context, id int64) (*domain.User, error)
	RegisterUser(ctx context.Context, id int64, chat domain.ChatInfo) (*domain.User, error)
	LogInteraction(ctx context.Context, in domain.Interaction) (*domain.Interaction, error)
	HasInteractionWithPlatformMessageID(ctx context.Context, userID string, id int64, limit int) bool
}

// Agent produces replies.
type Agent interface {
	Ask(ctx context.Context, userID, query string) (string, error)
}

// Messenger delivers replies to Telegram.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Deduper is the process-local duplicate gate.
type Deduper interface {
	SeenOrRecord(key string) bool
}

// Submitter runs background work.
type Submitter interface {
	Submit(ctx context.Context, name string, fn worker.Task) error
}

// DeliveryRecorder stores delivery outcomes. Errors are logged only.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d domain.Delivery) error
}

// MessageFlow wires the collaborators of the pipeline.
type MessageFlow struct {
	Users     UserDirectory
	Agent     Agent
	Messenger Messenger
	Dedupe    Deduper
	Pool      Submitter
	Ledger    DeliveryRecorder // optional

	Mode         FlowMode
	HistoryLimit int
}

// NewMessageFlow returns a MessageFlow in FlowDeferred mode.
func NewMessageFlow(users UserDirectory, agent Agent, messenger Messenger, dd Deduper, pool Submitter) *MessageFlow {
	return &MessageFlow{
		Users:        users,
		Agent:        agent,
		Messenger:    messenger,
		Dedupe:       dd,
		Pool:         pool,
		Mode:         FlowDeferred,
		HistoryLimit: DefaultHistoryLimit,
	}
}

// Handle runs the inline stages for one webhook body and schedules the rest.
func (f *MessageFlow) Handle(ctx context.Context, raw []byte) Outcome {
	upd := telegram.Normalize(raw)
	ctx = observability.WithCorrelation(ctx, upd.CorrelationID)

	tr := otel.Tracer("services/MessageFlow")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.Int64("chat.id", upd.ChatID),
			attribute.Int64("message.id", upd.MessageID),
			attribute.String("flow.mode", string(f.mode())),
		),
	)
	defer span.End()

	out := f.intake(ctx, upd)
	span.SetAttributes(attribute.String("flow.outcome", string(out)))
	observability.UpdatesTotal.WithLabelValues(string(out)).Inc()
	return out
}

func (f *MessageFlow) intake(ctx context.Context, upd domain.Update) Outcome {
	lg := observability.Logger(ctx)

	// Stage 1.
	if !upd.Valid() {
		lg.Debug().Msg("update without chat or sender, ignoring")
		return OutcomeInvalid
	}
	// Stage 2.
	if f.Dedupe != nil && f.Dedupe.SeenOrRecord(dedupe.MessageKey(upd.ChatID, upd.MessageID)) {
		lg.Info().Int64("message_id", upd.MessageID).Msg("duplicate update dropped")
		return OutcomeDuplicate
	}

	if f.mode() == FlowResolveFirst {
		user, out := f.resolve(ctx, upd)
		if user == nil {
			return out
		}
		return f.submit(ctx, "respond", func(ctx context.Context) error {
			f.respond(ctx, upd, user)
			return nil
		})
	}
	return f.submit(ctx, "process", func(ctx context.Context) error {
		user, out := f.resolve(ctx, upd)
		if user == nil {
			observability.LateOutcomesTotal.WithLabelValues(string(out)).Inc()
			return nil
		}
		f.respond(ctx, upd, user)
		return nil
	})
}

func (f *MessageFlow) submit(ctx context.Context, name string, fn worker.Task) Outcome {
	if err := f.Pool.Submit(ctx, name, fn); err != nil {
		observability.Logger(ctx).Error().Err(err).Str("task", name).Msg("background task rejected")
		return OutcomeRejected
	}
	return OutcomeAccepted
}

// resolve runs stages 3-5. A nil user means the turn is over.
func (f *MessageFlow) resolve(ctx context.Context, upd domain.Update) (*domain.User, Outcome) {
	lg := observability.Logger(ctx)

	// Stage 3.
	user, err := f.Users.GetUserByPlatformID(ctx, upd.SenderID)
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			lg.Warn().Err(err).Msg("user lookup failed, attempting registration")
		}
		user, err = f.Users.RegisterUser(ctx, upd.SenderID, upd.Chat)
		if err != nil {
			lg.Error().Err(err).Int64("telegram_id", upd.SenderID).Msg("user registration failed")
			return nil, OutcomeUnresolved
		}
	}
	if user == nil || user.ID == "" {
		lg.Error().Int64("telegram_id", upd.SenderID).Msg("user service returned no user id")
		return nil, OutcomeUnresolved
	}

	// Stage 4.
	if upd.MessageID != 0 && f.Users.HasInteractionWithPlatformMessageID(ctx, user.ID, upd.MessageID, f.historyLimit()) {
		lg.Info().Int64("message_id", upd.MessageID).Msg("message already in history, skipping")
		return nil, OutcomeHistoryDuplicate
	}

	// Stage 5.
	in := domain.Interaction{
		UserID:            user.ID,
		TelegramMessageID: messageIDPtr(upd.MessageID),
		Direction:         domain.DirectionIn,
		MessageText:       upd.Text,
		Metadata:          upd.Raw,
	}
	if _, err := f.Users.LogInteraction(ctx, in); err != nil {
		lg.Warn().Err(err).Msg("inbound interaction not logged, queued for retry")
	}
	return user, OutcomeAccepted
}

// respond runs stages 6-8.
func (f *MessageFlow) respond(ctx context.Context, upd domain.Update, user *domain.User) {
	lg := observability.Logger(ctx)
	tr := otel.Tracer("services/MessageFlow")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.Int64("chat.id", upd.ChatID),
			attribute.String("user.id", user.ID),
		),
	)
	defer span.End()

	// Stage 6.
	if err := f.Messenger.SendTyping(ctx, upd.ChatID); err != nil {
		lg.Debug().Err(err).Msg("typing indicator failed")
	}
	reply, err := f.Agent.Ask(ctx, user.ID, upd.Text)
	if err != nil || reply == "" {
		if err != nil {
			span.RecordError(err)
		}
		lg.Error().Err(err).Msg("agent call failed, sending apology")
		reply = ReplyAgentUnavailable
	}

	// Stage 7.
	meta, _ := json.Marshal(map[string]any{
		"reply_to_message_id": upd.MessageID,
		"correlation_id":      upd.CorrelationID,
	})
	out := domain.Interaction{
		UserID:            user.ID,
		TelegramMessageID: messageIDPtr(upd.MessageID),
		Direction:         domain.DirectionOut,
		MessageText:       reply,
		Metadata:          meta,
	}
	if _, err := f.Users.LogInteraction(ctx, out); err != nil {
		lg.Warn().Err(err).Msg("outbound interaction not logged, queued for retry")
	}

	// Stage 8.
	d := domain.Delivery{
		ChatID:            upd.ChatID,
		UserID:            user.ID,
		TelegramMessageID: messageIDPtr(upd.MessageID),
		Status:            domain.DeliverySent,
	}
	if err := f.Messenger.Send(ctx, upd.ChatID, reply); err != nil {
		span.RecordError(err)
		d.Status = domain.DeliveryFailed
		d.Detail = err.Error()
		var te *telegram.Error
		if errors.As(err, &te) {
			d.Retryable = te.Retryable()
		}
		lg.Error().Err(err).Bool("retryable", d.Retryable).Msg("reply delivery failed")
	}
	observability.DeliveriesTotal.WithLabelValues(d.Status).Inc()
	if f.Ledger != nil {
		if err := f.Ledger.RecordDelivery(ctx, d); err != nil {
			lg.Warn().Err(err).Msg("delivery ledger write failed")
		}
	}
}

func (f *MessageFlow) mode() FlowMode {
	if f.Mode == "" {
		return FlowDeferred
	}
	return f.Mode
}

func (f *MessageFlow) historyLimit() int {
	if f.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return f.HistoryLimit
}

func messageIDPtr(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
