package client

import (
	"editor-rpc/message"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// correlator matches responses to the callers waiting for them.
//
//	caller-1 ──register(a-1)──┐
//	caller-2 ──register(a-2)──┼──→ pending map
//	caller-3 ──register(a-3)──┘
//
//	response(a-2) ──take(a-2)──→ caller-2 wakes up
//	timer(a-1)    ──take(a-1)──→ caller-1 gets ErrTimeout
//	disconnect    ──failAll────→ caller-3 gets ErrConnectionClosed
//
// take is the only way out of the map, so whichever of response, timeout,
// disconnect or cancellation gets there first retires the call and the others
// find nothing.
type correlator struct {
	prefix  string        // random per-instance prefix for ids
	seq     atomic.Uint64 // monotonically increasing counter
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*call
}

type call struct {
	id      string
	command string
	timer   *time.Timer
	done    chan result // buffered: the retiring party never blocks
}

type result struct {
	value json.RawMessage
	err   error
}

func newCorrelator(timeout time.Duration) *correlator {
	return &correlator{
		prefix:  uuid.NewString()[:8],
		timeout: timeout,
		pending: make(map[string]*call),
	}
}

func (c *correlator) nextID() string {
	return c.prefix + "-" + strconv.FormatUint(c.seq.Add(1), 10)
}

// register tracks a new in-flight call and arms its timeout.
func (c *correlator) register(id, command string) *call {
	cl := &call{
		id:      id,
		command: command,
		done:    make(chan result, 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = cl
	if c.timeout > 0 {
		cl.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	}
	return cl
}

// take removes and returns the call for id. It is the single linearization
// point: at most one take succeeds per id.
func (c *correlator) take(id string) (*call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	delete(c.pending, id)
	if cl.timer != nil {
		cl.timer.Stop()
	}
	return cl, true
}

// resolve delivers resp to its caller. It reports false when no caller is
// waiting for that id any more (already timed out, failed or cancelled).
func (c *correlator) resolve(resp *message.Response) bool {
	cl, ok := c.take(resp.ID)
	if !ok {
		return false
	}
	if resp.Failed() {
		cl.done <- result{err: &RemoteError{ID: cl.id, Command: cl.command, Message: resp.Error}}
	} else {
		cl.done <- result{value: resp.Value()}
	}
	return true
}

func (c *correlator) expire(id string) {
	cl, ok := c.take(id)
	if !ok {
		return
	}
	cl.done <- result{err: fmt.Errorf("%s (id %s) after %s: %w", cl.command, id, c.timeout, ErrTimeout)}
}

// cancel retires id with err. It reports false if something else got there first.
func (c *correlator) cancel(id string, err error) bool {
	cl, ok := c.take(id)
	if !ok {
		return false
	}
	cl.done <- result{err: err}
	return true
}

// failAll rejects every pending call with err and returns how many there were.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	calls := c.pending
	c.pending = make(map[string]*call)
	for _, cl := range calls {
		if cl.timer != nil {
			cl.timer.Stop()
		}
	}
	c.mu.Unlock()

	for _, cl := range calls {
		cl.done <- result{err: fmt.Errorf("%s (id %s): %w", cl.command, cl.id, err)}
	}
	return len(calls)
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
