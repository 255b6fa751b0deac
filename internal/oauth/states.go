package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"workflowai/internal/store"
)

// StateStore keeps anti-CSRF state values between the login redirect and the
// callback. Consume succeeds at most once per saved state.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

type dbStates struct {
	states store.OAuthStates
	now    func() time.Time
}

// NewDBStateStore keeps states in the oauth_states table.
func NewDBStateStore(states store.OAuthStates) StateStore {
	return &dbStates{states: states, now: time.Now}
}

func (s *dbStates) Save(ctx context.Context, state string, ttl time.Duration) error {
	return s.states.Save(ctx, state, s.now().Add(ttl))
}

func (s *dbStates) Consume(ctx context.Context, state string) (bool, error) {
	return s.states.Consume(ctx, state, s.now())
}

const redisPrefix = "workflowai:oauth_state:"

type redisStates struct {
	rdb redis.UniversalClient
}

// NewRedisStateStore keeps states as expiring Redis keys.
func NewRedisStateStore(rdb redis.UniversalClient) StateStore {
	return &redisStates{rdb: rdb}
}

func (s *redisStates) Save(ctx context.Context, state string, ttl time.Duration) error {
	ok, err := s.rdb.SetNX(ctx, redisPrefix+state, 1, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("oauth state collision")
	}
	return nil
}

func (s *redisStates) Consume(ctx context.Context, state string) (bool, error) {
	err := s.rdb.GetDel(ctx, redisPrefix+state).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
