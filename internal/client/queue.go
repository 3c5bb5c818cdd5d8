package client

import (
	"context"
	"sync"
	"time"

	"botbridge/internal/domain"
)

const (
	queueBuffer      = 16
	queueIdleTimeout = time.Minute
)

// sendQueue serializes sends per recipient id. Each recipient gets one FIFO
// worker; sends to different recipients never wait on each other. This is a
// best-effort pacing feature, not a delivery guarantee.
type sendQueue struct {
	client      *Client
	delay       func(*domain.OutgoingMessage) time.Duration
	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[string]chan queuedSend
}

type queuedSend struct {
	ctx  context.Context
	msg  *domain.OutgoingMessage
	done chan sendOutcome
}

type sendOutcome struct {
	result *domain.SendResult
	err    error
}

func newSendQueue(c *Client, delay func(*domain.OutgoingMessage) time.Duration) *sendQueue {
	return &sendQueue{
		client:      c,
		delay:       delay,
		idleTimeout: queueIdleTimeout,
		workers:     make(map[string]chan queuedSend),
	}
}

// send enqueues msg on its recipient's worker and waits for the outcome.
func (q *sendQueue) send(ctx context.Context, msg *domain.OutgoingMessage) (*domain.SendResult, error) {
	item := queuedSend{ctx: ctx, msg: msg, done: make(chan sendOutcome, 1)}

	for !q.enqueue(msg.Recipient.ID, item) {
		// The recipient's queue is full; wait for the worker to drain it.
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case out := <-item.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue places item on the recipient's worker queue, spawning the worker
// when none is live. Holding the lock across the channel send makes enqueue
// mutually exclusive with worker retirement: a worker only retires after
// observing an empty queue under this same lock, so an item placed here is
// always drained.
func (q *sendQueue) enqueue(recipientID string, item queuedSend) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.workers[recipientID]
	if !ok {
		ch = make(chan queuedSend, queueBuffer)
		q.workers[recipientID] = ch
		go q.run(recipientID, ch)
	}
	select {
	case ch <- item:
		return true
	default:
		return false
	}
}

// run drains one recipient's queue in order, pacing each send when a delay
// function is configured. Idle workers exit after a minute so recipients
// that went quiet do not pin goroutines.
func (q *sendQueue) run(recipientID string, ch chan queuedSend) {
	idle := time.NewTimer(q.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item := <-ch:
			q.process(item)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(q.idleTimeout)
		case <-idle.C:
			q.mu.Lock()
			// An enqueue may have raced the timer; only retire an empty
			// queue. Enqueues hold the same lock, so once the worker is
			// deleted here no further item can land on this channel.
			if len(ch) == 0 {
				delete(q.workers, recipientID)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			idle.Reset(q.idleTimeout)
		}
	}
}

func (q *sendQueue) process(item queuedSend) {
	if item.ctx.Err() != nil {
		item.done <- sendOutcome{err: item.ctx.Err()}
		return
	}
	if q.delay != nil {
		if d := q.delay(item.msg); d > 0 {
			select {
			case <-time.After(d):
			case <-item.ctx.Done():
				item.done <- sendOutcome{err: item.ctx.Err()}
				return
			}
		}
	}
	res, err := q.client.adapter.SendTransport(item.ctx, item.msg)
	item.done <- sendOutcome{result: res, err: err}
}
