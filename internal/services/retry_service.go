package services

import (
	"context"
	"time"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/retryqueue"
)

// InteractionPoster writes an interaction without queueing on failure.
type InteractionPoster interface {
	PostInteraction(ctx context.Context, in domain.Interaction) (*domain.Interaction, error)
}

// RetryService drains the retry queue into the User Service.
type RetryService struct {
	Queue *retryqueue.Queue
	Users InteractionPoster
}

// NewRetryService returns a RetryService replaying q through users.
func NewRetryService(q *retryqueue.Queue, users InteractionPoster) *RetryService {
	return &RetryService{Queue: q, Users: users}
}

func (s *RetryService) replay(ctx context.Context, in domain.Interaction) error {
	_, err := s.Users.PostInteraction(ctx, in)
	return err
}

// Flush replays the queue once and returns how many writes went through.
func (s *RetryService) Flush(ctx context.Context) (int, error) {
	return s.Queue.Flush(ctx, s.replay)
}

// Pending returns the number of queued lines.
func (s *RetryService) Pending() (int, error) { return s.Queue.Len() }

// Run flushes every interval until ctx is done.
func (s *RetryService) Run(ctx context.Context, interval time.Duration) {
	s.Queue.Run(ctx, interval, s.replay)
}
