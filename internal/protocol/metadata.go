package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// CompressionType identifies the codec used to compress a message's
// payload, keyed the way internal/compression registers codecs.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZStd
	CompressionLZ4
)

// MessageMetadata is the per-message (or per-batch) metadata that
// precedes the payload inside a SEND frame. Optional fields are guarded
// by a presence bitmap so the wire size only grows for fields actually
// in use, rather than reserving space for every optional field up front.
type MessageMetadata struct {
	ProducerName      string
	SequenceId        uint64
	PublishTime       uint64
	Compression       CompressionType
	UncompressedSize  uint32
	SchemaVersion     []byte
	NumMessagesInBatch int32 // 0 means "not a batch" (absent on the wire)

	PartitionKey string // optional
	OrderingKey  []byte // optional

	UUID              string // optional, chunked messages: "{producer}-{sequenceId}"
	ChunkId           int32  // optional
	NumChunksFromMsg  int32  // optional
	TotalChunkMsgSize uint32 // optional
}

const (
	flagSchemaVersion = 1 << iota
	flagBatch
	flagPartitionKey
	flagOrderingKey
	flagChunk
)

func (m *MessageMetadata) flags() uint8 {
	var f uint8
	if len(m.SchemaVersion) > 0 {
		f |= flagSchemaVersion
	}
	if m.NumMessagesInBatch > 0 {
		f |= flagBatch
	}
	if m.PartitionKey != "" {
		f |= flagPartitionKey
	}
	if len(m.OrderingKey) > 0 {
		f |= flagOrderingKey
	}
	if m.UUID != "" {
		f |= flagChunk
	}
	return f
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeMessageMetadata serializes metadata to its wire form.
func EncodeMessageMetadata(m *MessageMetadata) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeString(&buf, m.ProducerName); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, m.SequenceId); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, m.PublishTime); err != nil {
		return nil, err
	}
	if err := buf.WriteByte(byte(m.Compression)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, m.UncompressedSize); err != nil {
		return nil, err
	}

	flags := m.flags()
	if err := buf.WriteByte(flags); err != nil {
		return nil, err
	}

	if flags&flagSchemaVersion != 0 {
		if err := writeBytes(&buf, m.SchemaVersion); err != nil {
			return nil, err
		}
	}
	if flags&flagBatch != 0 {
		if err := binary.Write(&buf, binary.BigEndian, m.NumMessagesInBatch); err != nil {
			return nil, err
		}
	}
	if flags&flagPartitionKey != 0 {
		if err := writeString(&buf, m.PartitionKey); err != nil {
			return nil, err
		}
	}
	if flags&flagOrderingKey != 0 {
		if err := writeBytes(&buf, m.OrderingKey); err != nil {
			return nil, err
		}
	}
	if flags&flagChunk != 0 {
		if err := writeString(&buf, m.UUID); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, m.ChunkId); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, m.NumChunksFromMsg); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, m.TotalChunkMsgSize); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

var ErrMalformedMetadata = errors.New("protocol: malformed message metadata")

// DecodeMessageMetadata is the inverse of EncodeMessageMetadata.
func DecodeMessageMetadata(data []byte) (*MessageMetadata, error) {
	r := bytes.NewReader(data)
	m := &MessageMetadata{}

	var err error
	if m.ProducerName, err = readString(r); err != nil {
		return nil, ErrMalformedMetadata
	}
	if err = binary.Read(r, binary.BigEndian, &m.SequenceId); err != nil {
		return nil, ErrMalformedMetadata
	}
	if err = binary.Read(r, binary.BigEndian, &m.PublishTime); err != nil {
		return nil, ErrMalformedMetadata
	}
	compByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedMetadata
	}
	m.Compression = CompressionType(compByte)
	if err = binary.Read(r, binary.BigEndian, &m.UncompressedSize); err != nil {
		return nil, ErrMalformedMetadata
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedMetadata
	}

	if flags&flagSchemaVersion != 0 {
		if m.SchemaVersion, err = readBytes(r); err != nil {
			return nil, ErrMalformedMetadata
		}
	}
	if flags&flagBatch != 0 {
		if err = binary.Read(r, binary.BigEndian, &m.NumMessagesInBatch); err != nil {
			return nil, ErrMalformedMetadata
		}
	}
	if flags&flagPartitionKey != 0 {
		if m.PartitionKey, err = readString(r); err != nil {
			return nil, ErrMalformedMetadata
		}
	}
	if flags&flagOrderingKey != 0 {
		if m.OrderingKey, err = readBytes(r); err != nil {
			return nil, ErrMalformedMetadata
		}
	}
	if flags&flagChunk != 0 {
		if m.UUID, err = readString(r); err != nil {
			return nil, ErrMalformedMetadata
		}
		if err = binary.Read(r, binary.BigEndian, &m.ChunkId); err != nil {
			return nil, ErrMalformedMetadata
		}
		if err = binary.Read(r, binary.BigEndian, &m.NumChunksFromMsg); err != nil {
			return nil, ErrMalformedMetadata
		}
		if err = binary.Read(r, binary.BigEndian, &m.TotalChunkMsgSize); err != nil {
			return nil, ErrMalformedMetadata
		}
	}

	return m, nil
}
