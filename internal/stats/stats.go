// Package stats exposes per-connection/producer counters built on
// rcrowley/go-metrics, the metrics library ValentinKolb-dKV's go.mod
// carries. The connection and producer
// packages stay free of any metrics dependency; a caller that wants
// visibility wraps them with a Recorder and feeds it from the
// SendCallback / dispatch hooks it already has.
package stats

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Recorder aggregates the counters a diagnostics surface (cmd/ryanmq-diag)
// or a higher-level client reports on a statsIntervalInSeconds cadence
//.
type Recorder struct {
	registry metrics.Registry

	sendsSubmitted metrics.Counter
	sendsAcked     metrics.Counter
	sendsFailed    metrics.Counter
	sendsTimedOut  metrics.Counter
	bytesSent      metrics.Counter
	reconnects     metrics.Counter
	sendLatency    metrics.Timer
}

// NewRecorder builds a Recorder with its own private registry, mirroring
// the way rcrowley/go-metrics callers usually avoid the shared
// DefaultRegistry to keep multiple producers' counters independent.
func NewRecorder() *Recorder {
	r := metrics.NewRegistry()
	return &Recorder{
		registry:       r,
		sendsSubmitted: metrics.NewRegisteredCounter("sends.submitted", r),
		sendsAcked:     metrics.NewRegisteredCounter("sends.acked", r),
		sendsFailed:    metrics.NewRegisteredCounter("sends.failed", r),
		sendsTimedOut:  metrics.NewRegisteredCounter("sends.timed_out", r),
		bytesSent:      metrics.NewRegisteredCounter("bytes.sent", r),
		reconnects:     metrics.NewRegisteredCounter("connection.reconnects", r),
		sendLatency:    metrics.NewRegisteredTimer("send.latency", r),
	}
}

// RecordSubmitted counts one message admitted into the send pipeline.
func (r *Recorder) RecordSubmitted(payloadBytes int) {
	r.sendsSubmitted.Inc(1)
	r.bytesSent.Inc(int64(payloadBytes))
}

// RecordCompletion folds a send's outcome into the ack/failed/timed-out
// counters and its round-trip latency, given the time the send was
// first submitted.
func (r *Recorder) RecordCompletion(ok bool, timedOut bool, submittedAt time.Time) {
	r.sendLatency.UpdateSince(submittedAt)
	switch {
	case ok:
		r.sendsAcked.Inc(1)
	case timedOut:
		r.sendsTimedOut.Inc(1)
	default:
		r.sendsFailed.Inc(1)
	}
}

// RecordReconnect counts one HandlerBase reconnection attempt.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc(1)
}

// Snapshot is a point-in-time read of every counter, suitable for
// logging or JSON encoding by a diagnostics command.
type Snapshot struct {
	SendsSubmitted int64         `json:"sends_submitted"`
	SendsAcked     int64         `json:"sends_acked"`
	SendsFailed    int64         `json:"sends_failed"`
	SendsTimedOut  int64         `json:"sends_timed_out"`
	BytesSent      int64         `json:"bytes_sent"`
	Reconnects     int64         `json:"reconnects"`
	MeanLatency    time.Duration `json:"mean_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
}

// Snapshot reads every counter without resetting them.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		SendsSubmitted: r.sendsSubmitted.Count(),
		SendsAcked:     r.sendsAcked.Count(),
		SendsFailed:    r.sendsFailed.Count(),
		SendsTimedOut:  r.sendsTimedOut.Count(),
		BytesSent:      r.bytesSent.Count(),
		Reconnects:     r.reconnects.Count(),
		MeanLatency:    time.Duration(r.sendLatency.Mean()),
		P99Latency:     time.Duration(r.sendLatency.Percentile(0.99)),
	}
}

// StartReporter runs fn every interval until stop is closed, the shape
// a stats interval option drives.
func (r *Recorder) StartReporter(interval time.Duration, stop <-chan struct{}, fn func(Snapshot)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn(r.Snapshot())
			}
		}
	}()
}
