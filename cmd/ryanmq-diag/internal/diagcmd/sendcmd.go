package diagcmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ryanMQ/internal/config"
	"ryanMQ/internal/connection"
	"ryanMQ/internal/corerr"
	"ryanMQ/internal/producer"
	"ryanMQ/internal/rlog"
	"ryanMQ/internal/stats"
	"ryanMQ/pkg/contracts"
)

var (
	sendTopic       string
	sendCount       int
	sendPayloadSize int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Connect one producer to a broker and send a batch of test messages",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTopic, "topic", "persistent://public/default/ryanmq-diag", "topic to publish to")
	sendCmd.Flags().IntVar(&sendCount, "count", 10, "number of messages to send")
	sendCmd.Flags().IntVar(&sendPayloadSize, "payload-bytes", 64, "size in bytes of each generated payload")
}

func runSend(cmd *cobra.Command, args []string) error {
	clientCfg := config.LoadClientConfiguration(v)
	producerDefaults := config.LoadProducerDefaults(v)

	ctx, cancel := context.WithTimeout(cmd.Context(), clientCfg.OperationTimeout+clientCfg.ConnectionTimeout)
	defer cancel()

	pool := newSingleAddrPool(clientCfg.ServiceURL, connection.Config{
		ConnectionTimeout:       clientCfg.ConnectionTimeout,
		OperationTimeout:        clientCfg.OperationTimeout,
		MaxPendingLookupRequest: clientCfg.ConcurrentLookupRequest,
		TLS:                     clientCfg.ToTransportTLS(),
	})

	mem := producer.NewMemoryLimiter(64 * 1024 * 1024)
	prod := producer.NewProducer(ctx, producerDefaults.ToProducerConfiguration(sendTopic), 1, pool, mem, nil)
	defer prod.Close()

	recorder := stats.NewRecorder()
	stop := make(chan struct{})
	if clientCfg.StatsIntervalSeconds > 0 {
		recorder.StartReporter(time.Duration(clientCfg.StatsIntervalSeconds)*time.Second, stop, func(s stats.Snapshot) {
			rlog.Info("stats: submitted=%d acked=%d failed=%d timedOut=%d bytes=%d", s.SendsSubmitted, s.SendsAcked, s.SendsFailed, s.SendsTimedOut, s.BytesSent)
		})
		defer close(stop)
	}

	payload := make([]byte, sendPayloadSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	var wg sync.WaitGroup
	for i := 0; i < sendCount; i++ {
		wg.Add(1)
		submittedAt := time.Now()
		recorder.RecordSubmitted(len(payload))
		result := prod.Send(ctx, &producer.Message{Payload: payload}, func(id contracts.MessageIdData, result corerr.Result) {
			defer wg.Done()
			recorder.RecordCompletion(result == corerr.ResultOk, result == corerr.ResultTimeout, submittedAt)
			if result != corerr.ResultOk {
				rlog.Warn("send failed: %s", result)
			}
		})
		if result != corerr.ResultOk {
			wg.Done()
			rlog.Warn("send rejected before admission: %s", result)
		}
	}
	wg.Wait()

	snap := recorder.Snapshot()
	fmt.Printf("submitted=%d acked=%d failed=%d timedOut=%d bytes=%d meanLatency=%s p99Latency=%s\n",
		snap.SendsSubmitted, snap.SendsAcked, snap.SendsFailed, snap.SendsTimedOut, snap.BytesSent, snap.MeanLatency, snap.P99Latency)
	return nil
}
