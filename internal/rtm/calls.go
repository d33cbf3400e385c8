package rtm

import (
	"encoding/json"
	"fmt"
)

// Callback receives the outcome of a correlated request. Callbacks run
// on the session's reader goroutine without the session lock held and
// must not block.
type Callback func(s *Session, ctx any, res Result)

type resultKind int

const (
	resultOK resultKind = iota
	resultErr
	resultCancelled
)

// Result is the single three-outcome resolution of a correlated call:
// success carrying the response payload, an application error carrying
// the server's message, or cancellation when the connection was torn
// down before a response arrived.
type Result struct {
	kind    resultKind
	payload json.RawMessage
	errMsg  string
}

func okResult(payload json.RawMessage) Result {
	return Result{kind: resultOK, payload: payload}
}

func errResult(msg string) Result {
	return Result{kind: resultErr, errMsg: msg}
}

func cancelledResult() Result {
	return Result{kind: resultCancelled}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.kind == resultOK }

// Cancelled reports whether the call was cancelled by a connection
// teardown, as opposed to failing with a server error.
func (r Result) Cancelled() bool { return r.kind == resultCancelled }

// ErrMessage returns the server-reported error message, empty unless
// the call failed with an application error.
func (r Result) ErrMessage() string { return r.errMsg }

// Payload returns the full response frame on success, nil otherwise.
func (r Result) Payload() json.RawMessage { return r.payload }

// pendingCall is one outstanding request awaiting its correlated
// response. It is resolved exactly once.
type pendingCall struct {
	cb  Callback
	ctx any
}

// callRegistry tracks outstanding request ids. It is guarded by the
// session lock. A pending call persists until its response arrives or
// the connection is torn down; there is no per-call timeout.
type callRegistry struct {
	pending map[uint64]*pendingCall
}

func newCallRegistry() *callRegistry {
	return &callRegistry{pending: make(map[uint64]*pendingCall)}
}

// register stores a pending call under id. Reusing an id that is still
// pending is a programmer error.
func (r *callRegistry) register(id uint64, cb Callback, ctx any) {
	if _, dup := r.pending[id]; dup {
		panic(fmt.Sprintf("rtm: request id %d already pending", id))
	}
	r.pending[id] = &pendingCall{cb: cb, ctx: ctx}
}

// resolve removes and returns the call registered under id. Unknown ids
// return nil: responses to calls this session never made, or already
// cancelled, are silently ignored.
func (r *callRegistry) resolve(id uint64) *pendingCall {
	call, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return call
}

// cancelAll drains the registry and returns the drained calls so the
// caller can deliver the cancelled outcome without holding any locks.
func (r *callRegistry) cancelAll() []*pendingCall {
	if len(r.pending) == 0 {
		return nil
	}
	drained := make([]*pendingCall, 0, len(r.pending))
	for id, call := range r.pending {
		delete(r.pending, id)
		drained = append(drained, call)
	}
	return drained
}

func (r *callRegistry) len() int { return len(r.pending) }
