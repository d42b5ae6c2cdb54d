package fluid

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
)

// OpKind enumerates deferred binding mutations.
type OpKind uint8

const (
	OpCreate OpKind = iota
	OpDestroy
	OpEnable
	OpDisable
	OpReconfigure
	OpFill
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpDestroy:
		return "destroy"
	case OpEnable:
		return "enable"
	case OpDisable:
		return "disable"
	case OpReconfigure:
		return "reconfigure"
	case OpFill:
		return "fill"
	default:
		return "unknown"
	}
}

// PendingOp is a binding mutation requested while a solver step was in flight.
type PendingOp struct {
	Kind    OpKind
	Binding *Binding
	Params  *config.EmitterConfig // OpReconfigure
	Region  r3.Box                // OpFill
}

// pendingQueue collects ops in request order and drains them at a phase
// boundary. Ops queued while draining run in the same drain.
type pendingQueue struct {
	ops []PendingOp
}

func (q *pendingQueue) push(op PendingOp) {
	q.ops = append(q.ops, op)
}

func (q *pendingQueue) len() int { return len(q.ops) }

func (q *pendingQueue) drain(apply func(PendingOp)) {
	for i := 0; i < len(q.ops); i++ {
		apply(q.ops[i])
	}
	clear(q.ops)
	q.ops = q.ops[:0]
}
