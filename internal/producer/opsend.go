package producer

import (
	"time"

	"ryanMQ/internal/corerr"
	"ryanMQ/pkg/contracts"
)

// SendCallback is invoked exactly once per user send: exactly one of a
// success or failure result, never both. For a chunked message it fires
// only after the last chunk's ack.
type SendCallback func(id contracts.MessageIdData, result corerr.Result)

// chunkAccumulator tracks the first and last chunk's ids across a
// chunked message, shared by every chunk's OpSendMsg belonging to the
// same original message.
type chunkAccumulator struct {
	numChunks int32
	seen      int32
	first     contracts.MessageIdData
	last      contracts.MessageIdData
}

// OpSendMsg is one in-flight send operation: possibly one chunk of a
// chunked message, or one batch. Frame is the fully built
// wire frame ready to hand to the connection; a non-Ok Result means
// construction itself failed (e.g. MessageTooBig) and Frame is nil, in
// which case the queue must propagate the failure without ever sending.
type OpSendMsg struct {
	SequenceId         uint64
	NumMessagesInBatch int32
	Frame              []byte
	Result             corerr.Result

	SendDeadline time.Time
	Callback     SendCallback

	// IsLastChunk/accum are set only for chunked sends; Callback is
	// suppressed on every chunk but the last, which fires with the
	// accumulator's first id once every chunk has been seen.
	IsLastChunk bool
	accum       *chunkAccumulator

	// memoryReserved is the number of bytes charged against the producer's
	// MemoryLimiter for this op; only the op that actually charged memory
	// (the whole message, or a chunked message's first chunk) carries a
	// nonzero value, so release happens exactly once per message.
	memoryReserved int64
}

// complete runs the user-visible callback for a successfully acked (or
// failed) op, folding chunked-message bookkeeping in transparently.
func (op *OpSendMsg) complete(id contracts.MessageIdData, result corerr.Result) {
	if op.accum != nil {
		op.accum.seen++
		if op.accum.seen == 1 {
			op.accum.first = id
		}
		op.accum.last = id
		if !op.IsLastChunk {
			return
		}
		if op.Callback != nil {
			if result == corerr.ResultOk {
				op.Callback(op.accum.first, result)
			} else {
				op.Callback(contracts.MessageIdData{}, result)
			}
		}
		return
	}
	if op.Callback != nil {
		op.Callback(id, result)
	}
}

// ChunkedMessageID exposes the first/last chunk ids once every chunk has
// been accounted for.
func (op *OpSendMsg) ChunkedMessageID() (first, last contracts.MessageIdData, ok bool) {
	if op.accum == nil || op.accum.seen < op.accum.numChunks {
		return contracts.MessageIdData{}, contracts.MessageIdData{}, false
	}
	return op.accum.first, op.accum.last, true
}
