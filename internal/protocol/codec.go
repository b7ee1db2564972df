package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"ryanMQ/internal/checksum"
)

const (
	magicBrokerEntryMetadata uint16 = 0x0e01
	magicChecksum            uint16 = 0x0e02
)

var (
	ErrMalformedFrame   = errors.New("protocol: malformed frame")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrUnknownCommand   = errors.New("protocol: unknown command type")
	ErrFrameTooLarge    = errors.New("protocol: frame exceeds maxMessageSize")
)

// DecodedFrame is what DecodeFrame hands back: the command, and, for
// SEND/MESSAGE-shaped frames, the optional payload region.
type DecodedFrame struct {
	Command *Command

	HasPayload       bool
	BrokerEntryMeta  []byte // opaque, present only if the 0x0e01 magic was set
	Metadata         *MessageMetadata
	Payload          []byte
	ChecksumPresent  bool
	ChecksumValid    bool
}

// EncodeCommand produces a command-only frame: totalSize | cmdSize | cmd.
func EncodeCommand(cmd *Command) ([]byte, error) {
	cmdBytes, err := MarshalCommand(cmd)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	totalSize := uint32(4 + len(cmdBytes))
	if err := binary.Write(&out, binary.BigEndian, totalSize); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.BigEndian, uint32(len(cmdBytes))); err != nil {
		return nil, err
	}
	out.Write(cmdBytes)
	return out.Bytes(), nil
}

// EncodeSend builds a full SEND-shaped frame: command segment followed by
// the payload segment (broker metadata is never set by the client, only
// present on frames the broker re-publishes, so it's omitted here).
//
// The header segment is built last because its totalSize field depends
// on the length of the payload segment that follows it; conceptually
// this mirrors the mutable-header / immutable-payload split brokers expect,
// even though in Go there is no need to patch bytes in place after the
// fact — we simply compute sizes before allocating the header.
func EncodeSend(cmd *Command, meta *MessageMetadata, payload []byte, withChecksum bool) ([]byte, error) {
	cmdBytes, err := MarshalCommand(cmd)
	if err != nil {
		return nil, err
	}
	metaBytes, err := EncodeMessageMetadata(meta)
	if err != nil {
		return nil, err
	}

	var payloadSeg bytes.Buffer
	if withChecksum {
		checksummed := buildChecksummedRegion(metaBytes, payload)
		if err := binary.Write(&payloadSeg, binary.BigEndian, magicChecksum); err != nil {
			return nil, err
		}
		crc := checksum.Checksum32C(checksummed)
		if err := binary.Write(&payloadSeg, binary.BigEndian, uint32(crc)); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&payloadSeg, binary.BigEndian, uint32(len(metaBytes))); err != nil {
		return nil, err
	}
	payloadSeg.Write(metaBytes)
	payloadSeg.Write(payload)

	var out bytes.Buffer
	totalSize := uint32(4 + len(cmdBytes) + payloadSeg.Len())
	if err := binary.Write(&out, binary.BigEndian, totalSize); err != nil {
		return nil, err
	}
	if err := binary.Write(&out, binary.BigEndian, uint32(len(cmdBytes))); err != nil {
		return nil, err
	}
	out.Write(cmdBytes)
	out.Write(payloadSeg.Bytes())
	return out.Bytes(), nil
}

// buildChecksummedRegion reconstructs the exact byte region the checksum
// covers: everything from just after the checksum field to end-of-frame,
// i.e. messageMetaSize|messageMetaBytes|payload.
func buildChecksummedRegion(metaBytes, payload []byte) []byte {
	var region bytes.Buffer
	binary.Write(&region, binary.BigEndian, uint32(len(metaBytes)))
	region.Write(metaBytes)
	region.Write(payload)
	return region.Bytes()
}

// DecodeFrame reads exactly one frame from r, blocking until all of its
// bytes have been read. The transport Socket's read pump calls it
// directly on its buffered reader over the connection.
func DecodeFrame(r io.Reader) (*DecodedFrame, error) {
	var totalSize, cmdSize uint32
	if err := binary.Read(r, binary.BigEndian, &totalSize); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &cmdSize); err != nil {
		return nil, ErrMalformedFrame
	}
	if cmdSize == 0 || int64(cmdSize) > int64(totalSize) {
		return nil, ErrMalformedFrame
	}

	cmdBytes := make([]byte, cmdSize)
	if _, err := io.ReadFull(r, cmdBytes); err != nil {
		return nil, ErrMalformedFrame
	}
	cmd, err := UnmarshalCommand(cmdBytes)
	if err != nil {
		return nil, ErrMalformedFrame
	}

	out := &DecodedFrame{Command: cmd}

	remaining := int64(totalSize) - 4 - int64(cmdSize)
	if remaining <= 0 {
		return out, nil
	}
	out.HasPayload = true

	lr := io.LimitReader(r, remaining)

	// Optional broker-entry-metadata / checksum magics, in that order.
	peek := make([]byte, 2)
	for {
		n, err := io.ReadFull(lr, peek)
		if err != nil || n < 2 {
			return nil, ErrMalformedFrame
		}
		magic := binary.BigEndian.Uint16(peek)
		switch magic {
		case magicBrokerEntryMetadata:
			var sz uint32
			if err := binary.Read(lr, binary.BigEndian, &sz); err != nil {
				return nil, ErrMalformedFrame
			}
			b := make([]byte, sz)
			if _, err := io.ReadFull(lr, b); err != nil {
				return nil, ErrMalformedFrame
			}
			out.BrokerEntryMeta = b
			continue
		case magicChecksum:
			var crc uint32
			if err := binary.Read(lr, binary.BigEndian, &crc); err != nil {
				return nil, ErrMalformedFrame
			}
			out.ChecksumPresent = true
			rest, err := io.ReadAll(lr)
			if err != nil {
				return nil, ErrMalformedFrame
			}
			out.ChecksumValid = checksum.Verify(rest, crc)
			return finishPayload(out, rest)
		default:
			// Not a recognized magic: this is the start of
			// messageMetaSize, rewind by treating peek as its
			// first two bytes.
			rest, err := io.ReadAll(lr)
			if err != nil {
				return nil, ErrMalformedFrame
			}
			full := append(append([]byte{}, peek...), rest...)
			return finishPayload(out, full)
		}
	}
}

func finishPayload(out *DecodedFrame, region []byte) (*DecodedFrame, error) {
	if len(region) < 4 {
		return nil, ErrMalformedFrame
	}
	metaSize := binary.BigEndian.Uint32(region[:4])
	region = region[4:]
	if uint64(metaSize) > uint64(len(region)) {
		return nil, ErrMalformedFrame
	}
	metaBytes := region[:metaSize]
	payload := region[metaSize:]

	meta, err := DecodeMessageMetadata(metaBytes)
	if err != nil {
		return nil, ErrMalformedFrame
	}
	out.Metadata = meta
	out.Payload = payload
	return out, nil
}
