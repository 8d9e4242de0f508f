package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

const hangupTimeout = 10 * time.Second

// LiveCaller places real calls through a Gateway and polls them to a
// terminal status.
type LiveCaller struct {
	gateway       Gateway
	poll          PollConfig
	fallbackPhone string
	wait          waitFunc
}

var _ Caller = (*LiveCaller)(nil)

type LiveOption func(*LiveCaller)

// WithFallbackPhone sets the number dialled for providers without one.
func WithFallbackPhone(phone string) LiveOption {
	return func(c *LiveCaller) {
		c.fallbackPhone = strings.TrimSpace(phone)
	}
}

func withWait(wait waitFunc) LiveOption {
	return func(c *LiveCaller) {
		if wait != nil {
			c.wait = wait
		}
	}
}

func NewLiveCaller(gateway Gateway, poll PollConfig, opts ...LiveOption) (*LiveCaller, error) {
	if gateway == nil {
		return nil, errors.New("call gateway is required")
	}
	c := &LiveCaller{
		gateway: gateway,
		poll:    poll.normalized(),
		wait:    sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *LiveCaller) Call(ctx context.Context, req Request) (*Session, error) {
	phone := strings.TrimSpace(req.Provider.Phone)
	if phone == "" {
		phone = c.fallbackPhone
	}
	if phone == "" {
		return nil, fmt.Errorf("%w: provider %s has no phone number", contractx.ErrCallInitiation, req.Provider.ID)
	}

	id, err := c.gateway.Initiate(ctx, phone, req.Strategy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, contractx.ErrCallInitiation) {
			err = fmt.Errorf("%w: %v", contractx.ErrCallInitiation, err)
		}
		return nil, err
	}

	session := NewSession(id, req.Provider.ID)
	if err := session.Advance(StatusDialing); err != nil {
		return session, err
	}
	logger := log.With().Str("session_id", id).Str("provider_id", req.Provider.ID).Logger()
	logger.Info().Msg("call initiated")

	var waited time.Duration
	var statusFailures int
	interval := c.poll.Interval
	for !session.Terminal() {
		if waited >= c.poll.MaxWait {
			_ = session.Advance(StatusExpired)
			logger.Warn().Dur("waited", waited).Msg("call polling budget exhausted")
			c.hangup(ctx, session)
			break
		}

		if err := c.wait(ctx, interval); err != nil {
			c.hangup(ctx, session)
			return session, err
		}
		waited += interval
		interval = c.poll.next(interval)

		if _, err := c.Poll(ctx, session); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.hangup(ctx, session)
				return session, ctxErr
			}
			statusFailures++
			logger.Warn().Err(err).Int("failures", statusFailures).Msg("call status fetch failed")
			if statusFailures >= c.poll.MaxStatusErrors {
				c.hangup(ctx, session)
				_ = session.Advance(StatusFailed)
				return session, fmt.Errorf("poll call %s: %w", session.ID, err)
			}
			continue
		}
		statusFailures = 0
	}

	logger.Info().Str("status", session.Status.String()).Msg("call ended")
	if session.Status == StatusExpired {
		return session, nil
	}

	text, ok, err := c.gateway.Transcript(ctx, session.ID)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return session, ctxErr
		}
		logger.Warn().Err(err).Msg("transcript lookup failed")
	case ok:
		session.SetTranscript(text)
	}
	return session, nil
}

// Poll refreshes session from the gateway. Once the session is terminal the
// cached status is returned and the gateway is not contacted.
func (c *LiveCaller) Poll(ctx context.Context, session *Session) (Status, error) {
	if session == nil {
		return "", errors.New("nil call session")
	}
	if session.Terminal() {
		return session.Status, nil
	}

	status, err := c.gateway.Status(ctx, session.ID)
	if err != nil {
		return session.Status, err
	}
	if err := session.Advance(status); err != nil {
		log.Debug().
			Err(err).
			Str("session_id", session.ID).
			Str("status", status.String()).
			Msg("ignoring out of order call status")
	}
	return session.Status, nil
}

// hangup ends a call that is still live on the gateway. It runs detached from
// ctx cancellation so an aborted run does not leave the line open.
func (c *LiveCaller) hangup(ctx context.Context, session *Session) {
	t, ok := c.gateway.(Terminator)
	if !ok {
		return
	}
	hangupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangupTimeout)
	defer cancel()
	if err := t.Hangup(hangupCtx, session.ID); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("hangup failed")
	}
}
