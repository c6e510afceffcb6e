package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/domain"
)

// SendCommand runs one correlated request on the user's session.
// Callers must not pipeline: one outstanding command per user.
func (r *Registry) SendCommand(ctx context.Context, user domain.UserID, line string, timeout time.Duration) (string, error) {
	s, ok := r.Get(user)
	if !ok {
		return "", ErrNotConnected
	}
	reply, err := s.Request(ctx, line, timeout)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.correlator").Str("user", string(user)).Msg("command failed")
		return "", err
	}
	log.Debug().Str("module", "app.correlator").Str("user", string(user)).Str("reply", reply).Msg("command reply")
	return reply, nil
}
