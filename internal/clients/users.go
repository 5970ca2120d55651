package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/observability"
)

const userService = "user-service"

// Enqueuer receives writes that could not be delivered.
type Enqueuer interface {
	Enqueue(ctx context.Context, item domain.RetryItem)
}

// UserService talks to the external User Service.
type UserService struct {
	base  string
	hc    *http.Client
	queue Enqueuer
}

// NewUserService returns a client for the service rooted at base. Failed
// interaction writes go to queue when it is non-nil.
func NewUserService(base string, hc *http.Client, queue Enqueuer) *UserService {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &UserService{base: strings.TrimRight(base, "/"), hc: hc, queue: queue}
}

// GetUserByPlatformID looks a user up by Telegram id. A missing user yields
// ErrNotFound.
func (s *UserService) GetUserByPlatformID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "get_user"
	ctx, span := s.start(ctx, "GetUserByPlatformID", attribute.Int64("telegram.user_id", id))
	defer span.End()

	status, body, err := doJSON(ctx, s.hc, http.MethodGet, s.base+"/api/users/by-telegram/"+strconv.FormatInt(id, 10), nil)
	switch {
	case err != nil:
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, err))
	case status == http.StatusNotFound:
		observability.ObserveCall(userService, op, nil)
		return nil, ErrNotFound
	case !isSuccess(status):
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, nil))
	}
	var u domain.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, s.fail(span, op, remoteErr(userService, op, status, nil, fmt.Errorf("decode user: %w", err)))
	}
	observability.ObserveCall(userService, op, nil)
	return &u, nil
}

type registerRequest struct {
	TelegramID int64   `json:"telegram_id"`
	Phone      *string `json:"phone"`
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
}

// RegisterUser creates the user for a Telegram id. If the service answers
// 409 Conflict the existing record is fetched and returned instead.
func (s *UserService) RegisterUser(ctx context.Context, id int64, chat domain.ChatInfo) (*domain.User, error) {
	const op = "register_user"
	ctx, span := s.start(ctx, "RegisterUser", attribute.Int64("telegram.user_id", id))
	defer span.End()

	req := registerRequest{TelegramID: id}
	if name := strings.TrimSpace(chat.DisplayName()); name != "" {
		req.FullName = &name
	}
	status, body, err := doJSON(ctx, s.hc, http.MethodPost, s.base+"/api/users/register", req)
	switch {
	case err != nil:
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, err))
	case status == http.StatusConflict:
		observability.ObserveCall(userService, op, nil)
		return s.GetUserByPlatformID(ctx, id)
	case !isSuccess(status):
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, nil))
	}

	// The service answers either {"message": ..., "user": {...}} or the bare user.
	var wrapped struct {
		User *domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.User != nil {
		observability.ObserveCall(userService, op, nil)
		return wrapped.User, nil
	}
	var u domain.User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, s.fail(span, op, remoteErr(userService, op, status, nil, fmt.Errorf("decode user: %w", err)))
	}
	observability.ObserveCall(userService, op, nil)
	return &u, nil
}

// LogInteraction records one interaction. On failure the interaction is
// queued for replay and the error is still returned.
func (s *UserService) LogInteraction(ctx context.Context, in domain.Interaction) (*domain.Interaction, error) {
	out, err := s.PostInteraction(ctx, in)
	if err == nil {
		return out, nil
	}
	if s.queue != nil {
		item, merr := domain.NewInteractionRetry(in)
		if merr != nil {
			observability.Logger(ctx).Error().Err(merr).Msg("encode interaction for retry")
		} else {
			s.queue.Enqueue(ctx, item)
		}
	}
	return nil, err
}

// PostInteraction records one interaction without queueing on failure. The
// retry queue replays through it.
func (s *UserService) PostInteraction(ctx context.Context, in domain.Interaction) (*domain.Interaction, error) {
	const op = "log_interaction"
	ctx, span := s.start(ctx, "PostInteraction",
		attribute.String("user.id", in.UserID),
		attribute.String("interaction.direction", in.Direction),
	)
	defer span.End()

	status, body, err := doJSON(ctx, s.hc, http.MethodPost, s.base+"/api/interactions/", in)
	if err != nil {
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, err))
	}
	if !isSuccess(status) {
		return nil, s.fail(span, op, remoteErr(userService, op, status, body, nil))
	}
	observability.ObserveCall(userService, op, nil)

	var out domain.Interaction
	if len(body) == 0 || json.Unmarshal(body, &out) != nil {
		return &in, nil
	}
	return &out, nil
}

// ListRecentInteractions returns up to limit recent interactions of userID.
// Any failure yields an empty result.
func (s *UserService) ListRecentInteractions(ctx context.Context, userID string, limit int) []domain.Interaction {
	const op = "list_interactions"
	ctx, span := s.start(ctx, "ListRecentInteractions", attribute.String("user.id", userID))
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	u := s.base + "/api/interactions/" + url.PathEscape(userID) + "?limit=" + strconv.Itoa(limit)
	status, body, err := doJSON(ctx, s.hc, http.MethodGet, u, nil)
	if err != nil || (!isSuccess(status) && status != http.StatusNotFound) {
		rerr := remoteErr(userService, op, status, body, err)
		observability.ObserveCall(userService, op, rerr)
		observability.Logger(ctx).Debug().Err(rerr).Msg("recent interactions unavailable")
		return nil
	}
	observability.ObserveCall(userService, op, nil)
	if status == http.StatusNotFound {
		return nil
	}
	var out []domain.Interaction
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out
}

// HasInteractionWithPlatformMessageID reports whether one of the last limit
// interactions of userID carries the Telegram message id.
func (s *UserService) HasInteractionWithPlatformMessageID(ctx context.Context, userID string, id int64, limit int) bool {
	for _, it := range s.ListRecentInteractions(ctx, userID, limit) {
		if it.TelegramMessageID != nil && *it.TelegramMessageID == id {
			return true
		}
	}
	return false
}

func (s *UserService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("clients/UserService").Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *UserService) fail(span trace.Span, op string, err *RemoteServiceError) error {
	span.RecordError(err)
	observability.ObserveCall(userService, op, err)
	return err
}
