package controller

import (
	"context"

	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/model"
)

// task is one running producer: a cancellable goroutine that streams
// connector output onto the update routing key.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// subscribe starts the producer task for the stream. A second sub for a
// stream that already has a task is a no-op: this is the at-most-one-task
// invariant of the multiplexer.
func (c *Controller) subscribe(id model.StreamID) {
	c.tasksMu.Lock()
	if _, exists := c.tasks[id]; exists {
		c.tasksMu.Unlock()
		c.logger.Debug("duplicate sub ignored", "stream", id.String())
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	c.tasks[id] = t
	c.tasksMu.Unlock()

	c.wg.Add(1)
	go c.runStream(ctx, id, t)

	c.logger.Info("producer task started", "stream", id.String())
}

// unsubscribe cancels the producer task for the stream, if any.
func (c *Controller) unsubscribe(id model.StreamID) {
	c.tasksMu.Lock()
	t, exists := c.tasks[id]
	if exists {
		delete(c.tasks, id)
	}
	c.tasksMu.Unlock()

	if !exists {
		c.logger.Debug("unsub without task ignored", "stream", id.String())
		return
	}

	// Cancellation is cooperative: the task observes it at its next
	// suspension point. The demand handler does not wait for it.
	t.cancel()
	c.logger.Info("producer task stopped", "stream", id.String())
}

// runStream drives the connector's streaming call, publishing every payload
// on the update routing key. A connector failure ends the task with an error
// publication and deregisters it so a later sub can restart the stream.
func (c *Controller) runStream(ctx context.Context, id model.StreamID, t *task) {
	defer c.wg.Done()
	defer close(t.done)
	defer t.cancel()

	conn, ok := c.registry.Get(id.Exchange)
	if !ok {
		return
	}

	subject := id.Subject(model.PhaseUpdate)
	publish := func(payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return c.bus.Publish(subject, data)
	}

	err := exchange.Stream(ctx, id.String(), func(ctx context.Context) error {
		switch id.Kind {
		case model.KindTicker:
			return conn.StreamTicker(ctx, id.Pair, func(t model.Ticker) error { return publish(t) })
		case model.KindCandles:
			return conn.StreamCandles(ctx, id.Pair, id.Timeframe, func(cd model.Candle) error { return publish(cd) })
		case model.KindDepth:
			return conn.StreamDepth(ctx, id.Pair, func(d model.Depth) error { return publish(d) })
		}
		return nil
	})

	if err != nil {
		c.logger.Warn("producer task failed", "stream", id.String(), "error", err)
		c.publishError(id.String(), err.Error())
	}

	// Deregister, unless unsubscribe already removed this task.
	c.tasksMu.Lock()
	if current, exists := c.tasks[id]; exists && current == t {
		delete(c.tasks, id)
	}
	c.tasksMu.Unlock()
}
