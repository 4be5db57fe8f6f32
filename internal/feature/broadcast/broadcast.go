// Package broadcast delivers a message to every stored user, one at a time,
// tallying the outcome of each send.
package broadcast

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"upi_qr_bot/internal/logging"
)

// Sender delivers the broadcast payload to a single user chat.
type Sender interface {
	Send(ctx context.Context, userID int64) error
}

// Tally accumulates per-outcome counters over a broadcast run.
type Tally struct {
	Total        int
	Successful   int
	Blocked      int
	Deleted      int
	Unsuccessful int
}

// Progress is invoked periodically with the running tally so callers can
// update a status message.
type Progress func(ctx context.Context, tally Tally)

// Outcomes of a single send attempt.
const (
	outcomeSuccess      = "success"
	outcomeBlocked      = "blocked"
	outcomeDeleted      = "deleted"
	outcomeUnsuccessful = "unsuccessful"
)

const defaultProgressEvery = 20

// sleep is overridable for tests.
var sleep = time.Sleep

// Engine runs a sequential broadcast over a list of user ids. Delivery is
// deliberately unbatched: one send at a time, pausing when the transport
// signals a rate limit and retrying the same user afterwards.
type Engine struct {
	sender        Sender
	logger        *logrus.Entry
	progressEvery int
}

// NewEngine constructs a broadcast engine.
func NewEngine(sender Sender, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Engine{
		sender:        sender,
		logger:        logger,
		progressEvery: defaultProgressEvery,
	}
}

// Run delivers the payload to every user id in order and returns the final
// tally. Individual failures are classified and counted without stopping the
// loop; only a nil sender or canceled context aborts the run.
func (e *Engine) Run(ctx context.Context, userIDs []int64, progress Progress) (Tally, error) {
	if e == nil || e.sender == nil {
		return Tally{}, errors.New("broadcast engine is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tally := Tally{Total: len(userIDs)}

	for i, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return tally, err
		}

		outcome := e.sendWithRetry(ctx, userID)
		switch outcome {
		case outcomeSuccess:
			tally.Successful++
		case outcomeBlocked:
			tally.Blocked++
		case outcomeDeleted:
			tally.Deleted++
		default:
			tally.Unsuccessful++
		}

		if progress != nil && (i+1)%e.progressEvery == 0 {
			progress(ctx, tally)
		}
	}

	e.logger.WithFields(logging.Fields{
		"event":        "broadcast_complete",
		"total":        tally.Total,
		"successful":   tally.Successful,
		"blocked":      tally.Blocked,
		"deleted":      tally.Deleted,
		"unsuccessful": tally.Unsuccessful,
	}).Info("broadcast finished")

	return tally, nil
}

// sendWithRetry performs one delivery, honoring rate-limit pauses. A rate
// limit is not a failure: the loop sleeps for the mandated duration and
// retries the same user.
func (e *Engine) sendWithRetry(ctx context.Context, userID int64) string {
	for {
		err := e.sender.Send(ctx, userID)
		if err == nil {
			return outcomeSuccess
		}

		var rateLimited *bot.TooManyRequestsError
		if errors.As(err, &rateLimited) {
			e.logger.WithFields(logging.Fields{
				"event":       "broadcast_rate_limited",
				"user_id":     userID,
				"retry_after": rateLimited.RetryAfter,
			}).Warn("pausing broadcast for rate limit")

			sleep(time.Duration(rateLimited.RetryAfter) * time.Second)
			continue
		}

		outcome := classify(err)
		e.logger.WithFields(logging.Fields{
			"event":   "broadcast_send_failed",
			"user_id": userID,
			"outcome": outcome,
		}).WithError(err).Debug("broadcast delivery failed")

		return outcome
	}
}

// classify buckets a delivery error: users who blocked the bot, accounts that
// no longer exist, and everything else.
func classify(err error) string {
	if err == nil {
		return outcomeSuccess
	}

	msg := strings.ToLower(err.Error())
	if errors.Is(err, bot.ErrorForbidden) || strings.Contains(msg, "forbidden") {
		if strings.Contains(msg, "deactivated") {
			return outcomeDeleted
		}
		return outcomeBlocked
	}

	return outcomeUnsuccessful
}
