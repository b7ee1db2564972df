package producer

import (
	"fmt"

	"ryanMQ/internal/corerr"
)

// planChunks computes chunk boundaries: chunk payload size =
// maxMessageSize - metadataSize; fails MessageTooBig if metadataSize
// alone already reaches maxMessageSize.
func planChunks(compressedSize, metadataSize int, maxMessageSize int32) (numChunks int, chunkSize int, err error) {
	if int32(metadataSize) >= maxMessageSize {
		return 0, 0, corerr.ResultMessageTooBig
	}
	chunkSize = int(maxMessageSize) - metadataSize
	if chunkSize <= 0 {
		return 0, 0, corerr.ResultMessageTooBig
	}
	numChunks = (compressedSize + chunkSize - 1) / chunkSize
	if numChunks == 0 {
		numChunks = 1
	}
	return numChunks, chunkSize, nil
}

// splitPayload slices compressed into numChunks pieces of at most
// chunkSize bytes each.
func splitPayload(compressed []byte, numChunks, chunkSize int) [][]byte {
	out := make([][]byte, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(compressed) {
			end = len(compressed)
		}
		out = append(out, compressed[start:end])
	}
	return out
}

// chunkUUID derives the chunk UUID: uuid = "{producer}-{sequenceId}".
func chunkUUID(producerName string, sequenceId uint64) string {
	return fmt.Sprintf("%s-%d", producerName, sequenceId)
}
