package broker

import (
	"sync"
	"time"

	"github.com/nerrad567/deckd/internal/protocol"
)

// maxPending bounds the number of unresolved commands one connection
// may have in flight. Commands execute one at a time; the bound is the
// pipelining depth a client may queue ahead.
const maxPending = 32

// Mux correlates command frames with their responses for one persistent
// connection. Commands run through a single worker, so device I/O stays
// serialized; each pending entry carries its own timeout so a queued
// command cannot wait forever behind a stuck one.
//
// Every submitted command resolves exactly once: with the executor's
// response frame, with a timeout CommandError, or with a
// connection-closed CommandError when the mux shuts down.
type Mux struct {
	exec    func(protocol.Frame) protocol.Frame
	timeout time.Duration

	mu      sync.Mutex
	pending map[uint16]*pendingCommand
	closed  bool

	tasks chan protocol.Frame
	done  chan struct{}
}

type pendingCommand struct {
	ch    chan protocol.Frame
	timer *time.Timer
}

// NewMux starts a mux whose worker resolves commands via exec. The
// executor must return the response frame for the command's sequence.
func NewMux(exec func(protocol.Frame) protocol.Frame, timeout time.Duration) *Mux {
	x := &Mux{
		exec:    exec,
		timeout: timeout,
		pending: make(map[uint16]*pendingCommand),
		tasks:   make(chan protocol.Frame, maxPending),
		done:    make(chan struct{}),
	}
	go x.worker()
	return x
}

// Submit queues a command frame and returns the channel its response
// frame will be delivered on. The channel receives exactly one frame.
func (x *Mux) Submit(f protocol.Frame) (<-chan protocol.Frame, error) {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if len(x.pending) >= maxPending {
		x.mu.Unlock()
		return nil, ErrPendingLimit
	}
	if _, exists := x.pending[f.Seq]; exists {
		x.mu.Unlock()
		return nil, ErrDuplicateSequence
	}

	seq := f.Seq
	p := &pendingCommand{ch: make(chan protocol.Frame, 1)}
	p.timer = time.AfterFunc(x.timeout, func() {
		x.resolve(seq, errorFrame(seq, ErrCommandTimeout.Error()))
	})
	x.pending[seq] = p
	x.mu.Unlock()

	select {
	case x.tasks <- f:
	case <-x.done:
		x.mu.Lock()
		if cur, ok := x.pending[seq]; ok && cur == p {
			delete(x.pending, seq)
			p.timer.Stop()
		}
		x.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	return p.ch, nil
}

// worker executes queued commands one at a time. It exits on Close;
// a command already in flight finishes its device I/O first, and its
// late resolution is dropped by the emptied pending map.
func (x *Mux) worker() {
	for {
		select {
		case <-x.done:
			return
		case f := <-x.tasks:
			x.resolve(f.Seq, x.exec(f))
		}
	}
}

// resolve delivers a response to the pending entry for seq, if it is
// still pending. A command already resolved (timed out, or mux closed)
// drops the late response silently.
func (x *Mux) resolve(seq uint16, resp protocol.Frame) {
	x.mu.Lock()
	p, ok := x.pending[seq]
	if ok {
		delete(x.pending, seq)
		p.timer.Stop()
	}
	x.mu.Unlock()
	if ok {
		p.ch <- resp
	}
}

// Close fails every pending command with a connection-closed error and
// stops the worker. Safe to call more than once.
func (x *Mux) Close() {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.closed = true
	pending := x.pending
	x.pending = make(map[uint16]*pendingCommand)
	x.mu.Unlock()

	close(x.done)
	for seq, p := range pending {
		p.timer.Stop()
		p.ch <- errorFrame(seq, ErrConnectionClosed.Error())
	}
}

// errorFrame builds a CommandError response carrying a message.
func errorFrame(seq uint16, msg string) protocol.Frame {
	return protocol.Frame{Tag: protocol.TagCommandError, Seq: seq, Payload: []byte(msg)}
}

// ackFrame builds an empty CommandAck response.
func ackFrame(seq uint16) protocol.Frame {
	return protocol.Frame{Tag: protocol.TagCommandAck, Seq: seq}
}
