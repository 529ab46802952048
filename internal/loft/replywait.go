package loft

import (
	"context"
	"fmt"
	"time"
)

// Reply-wait defaults. The timeout is caller-configurable per call; the
// poll interval is fixed.
const (
	DefaultWaitTimeout = 120 * time.Second
	PollInterval       = 3 * time.Second
)

// TimeoutError means no reply arrived within the wait deadline. This is
// recoverable: the thread exists and can be checked again later with the
// embedded thread id.
type TimeoutError struct {
	ThreadID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no reply before the deadline; check thread %s again later with get_chat_history", e.ThreadID)
}

// Waiter converts a fire-and-forget chat send into a bounded synchronous
// exchange: send, then poll the thread history until one more message
// than we produced appears, or the deadline passes.
//
// The clock and sleep functions exist so tests can simulate time.
type Waiter struct {
	client   *Client
	interval time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration)
}

// NewWaiter creates a reply waiter over the given client.
func NewWaiter(c *Client) *Waiter {
	return &Waiter{
		client:   c,
		interval: PollInterval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetPollInterval overrides the sleep between history polls. Values
// <= 0 are ignored.
func (w *Waiter) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// CreateAndWait creates a thread seeded with message, then waits for the
// first reply. A zero timeout uses DefaultWaitTimeout. The thread id is
// returned even when the wait times out, so the caller can follow up.
func (w *Waiter) CreateAndWait(ctx context.Context, message string, timeout time.Duration) (*Message, string, error) {
	thread, err := w.client.CreateThread(ctx, message)
	if err != nil {
		return nil, "", err
	}

	// A fresh thread holds only our seed message: baseline 0, so the
	// reply condition is seed + one more.
	reply, err := w.poll(ctx, thread.ID, 0, timeout)
	return reply, thread.ID, err
}

// SendAndWait sends message to an existing thread, then waits for a
// reply. The pre-send history length is the baseline that separates our
// own new message from the reply.
func (w *Waiter) SendAndWait(ctx context.Context, threadID, message string, timeout time.Duration) (*Message, error) {
	history, err := w.client.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	baseline := len(history)

	if _, err := w.client.SendMessage(ctx, threadID, message); err != nil {
		return nil, err
	}

	return w.poll(ctx, threadID, baseline, timeout)
}

// poll repeatedly fetches the thread history until the message count
// reaches baseline+2 (our message plus one reply) or the deadline
// passes. A failed fetch never aborts the wait: transient platform
// errors mid-poll are skipped and the next scheduled attempt proceeds.
func (w *Waiter) poll(ctx context.Context, threadID string, baseline int, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	// Wall-clock deadline, computed once, never adjusted mid-flight.
	deadline := w.now().Add(timeout)

	for w.now().Before(deadline) {
		w.sleep(ctx, w.interval)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		messages, err := w.client.History(ctx, threadID)
		if err != nil {
			w.client.logger.Debug("reply poll failed, will retry",
				"thread_id", threadID,
				"error", err,
			)
			continue
		}

		if len(messages) >= baseline+2 {
			reply := messages[len(messages)-1]
			return &reply, nil
		}
	}

	return nil, &TimeoutError{ThreadID: threadID}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
