// Package compression wraps the third-party codecs used to compress a
// message's payload before it is stamped into a MessageMetadata and
// placed on the wire. Codec implementations are treated as primitives
// out of scope; this package only supplies the registry and the concrete
// wrappers the pack's compression libraries.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"ryanMQ/internal/protocol"
)

// Codec compresses/decompresses a payload for one CompressionType.
type Codec interface {
	Encode(src []byte) ([]byte, error)
	Decode(src []byte, uncompressedSize int) ([]byte, error)
}

type noneCodec struct{}

func (noneCodec) Encode(src []byte) ([]byte, error) { return src, nil }
func (noneCodec) Decode(src []byte, _ int) ([]byte, error) { return src, nil }

type snappyCodec struct{}

func (snappyCodec) Encode(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decode(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, 0, uncompressedSize)
	return snappy.Decode(dst, src)
}

type zstdCodec struct{}

func (zstdCodec) Encode(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func (zstdCodec) Decode(src []byte, uncompressedSize int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	dst := make([]byte, 0, uncompressedSize)
	return dec.DecodeAll(src, dst)
}

type lz4Codec struct{}

func (lz4Codec) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decode(src []byte, uncompressedSize int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	dst := make([]byte, uncompressedSize)
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return dst[:n], nil
}

var registry = map[protocol.CompressionType]Codec{
	protocol.CompressionNone:   noneCodec{},
	protocol.CompressionSnappy: snappyCodec{},
	protocol.CompressionZStd:   zstdCodec{},
	protocol.CompressionLZ4:    lz4Codec{},
}

// Get returns the codec registered for t, or an error if unknown.
func Get(t protocol.CompressionType) (Codec, error) {
	c, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("compression: unknown codec %d", t)
	}
	return c, nil
}
