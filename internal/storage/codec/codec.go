// Package codec encodes opaque game-state payloads into self-describing
// compressed snapshot containers and decodes them back.
//
// Container layout (compressed-v1):
//
//	magic           8 bytes  "TMSNAPV1"
//	header length   4 bytes  big endian
//	header          JSON     {version, format, payload_size, checksum, meta}
//	body            zstd frame of the payload
//
// The checksum is the murmur3 64-bit hash of the uncompressed payload. The
// header carries no timestamps, so encoding identical input always yields
// identical bytes.
//
// The legacy raw-json format is read-only: its payload is the file content.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/spaolacci/murmur3"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

// Magic bytes identify snapshot containers.
var magicBytes = []byte("TMSNAPV1")

const (
	headerVersion = 1

	// maxHeaderSize bounds the JSON header read from untrusted input.
	maxHeaderSize = 1 << 20

	// DefaultMaxPayloadSize bounds decompressed payloads (256 MiB).
	DefaultMaxPayloadSize = 256 << 20
)

type containerHeader struct {
	Version     int               `json:"version"`
	Format      domain.Format     `json:"format"`
	PayloadSize uint64            `json:"payload_size"`
	Checksum    uint64            `json:"checksum"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Option configures a Codec.
type Option func(*options)

type options struct {
	level          zstd.EncoderLevel
	maxPayloadSize uint64
}

// WithLevel sets the zstd encoder level. The level is fixed for the life of
// the codec.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithMaxPayloadSize bounds the decompressed payload size accepted by Decode.
func WithMaxPayloadSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPayloadSize = n
		}
	}
}

// Codec encodes and decodes snapshot containers. It is safe for concurrent use.
type Codec struct {
	enc            *zstd.Encoder
	dec            *zstd.Decoder
	maxPayloadSize uint64
}

// New creates a Codec.
func New(opts ...Option) (*Codec, error) {
	o := options{
		level:          zstd.SpeedDefault,
		maxPayloadSize: DefaultMaxPayloadSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(o.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(o.maxPayloadSize),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("codec: create decoder: %w", err)
	}

	return &Codec{
		enc:            enc,
		dec:            dec,
		maxPayloadSize: o.maxPayloadSize,
	}, nil
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

// Encode wraps payload and meta in a compressed-v1 container.
func (c *Codec) Encode(payload []byte, meta map[string]string) ([]byte, error) {
	hdr := containerHeader{
		Version:     headerVersion,
		Format:      domain.FormatCompressedV1,
		PayloadSize: uint64(len(payload)),
		Checksum:    murmur3.Sum64(payload),
	}
	if len(meta) > 0 {
		hdr.Meta = meta
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(magicBytes) + 4 + len(hdrJSON) + len(payload)/2)
	buf.Write(magicBytes)

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	buf.Write(hdrLen[:])
	buf.Write(hdrJSON)

	return c.enc.EncodeAll(payload, buf.Bytes()), nil
}

// Decode parses data stored in the given format and returns the payload
// and its metadata. Failures are reported as domain.ErrCorruptSnapshot.
func (c *Codec) Decode(format domain.Format, data []byte) (*domain.Snapshot, error) {
	switch format {
	case domain.FormatCompressedV1:
		return c.decodeContainer(data)
	case domain.FormatRawJSON:
		return decodeLegacy(data)
	default:
		return nil, domain.ErrCorruptSnapshot.WithDetailsf("unknown format %q", format)
	}
}

func (c *Codec) decodeContainer(data []byte) (*domain.Snapshot, error) {
	if len(data) < len(magicBytes)+4 {
		return nil, domain.ErrCorruptSnapshot.WithDetails("container too short")
	}
	if !bytes.Equal(data[:len(magicBytes)], magicBytes) {
		return nil, domain.ErrCorruptSnapshot.WithDetails("invalid magic bytes")
	}
	rest := data[len(magicBytes):]

	hdrLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if hdrLen == 0 || hdrLen > maxHeaderSize || uint64(hdrLen) > uint64(len(rest)) {
		return nil, domain.ErrCorruptSnapshot.WithDetailsf("invalid header length %d", hdrLen)
	}

	var hdr containerHeader
	if err := json.Unmarshal(rest[:hdrLen], &hdr); err != nil {
		return nil, domain.ErrCorruptSnapshot.WithDetails("unmarshal header").WithCause(err)
	}
	if hdr.Version != headerVersion {
		return nil, domain.ErrCorruptSnapshot.WithDetailsf("unsupported container version %d", hdr.Version)
	}
	if hdr.PayloadSize > c.maxPayloadSize {
		return nil, domain.ErrCorruptSnapshot.WithDetailsf("payload size %d exceeds limit", hdr.PayloadSize)
	}
	body := rest[hdrLen:]

	payload := []byte{}
	if hdr.PayloadSize > 0 {
		out, err := c.dec.DecodeAll(body, make([]byte, 0, hdr.PayloadSize))
		if err != nil {
			return nil, domain.ErrCorruptSnapshot.WithDetails("decompress").WithCause(err)
		}
		payload = out
	}

	if uint64(len(payload)) != hdr.PayloadSize {
		return nil, domain.ErrCorruptSnapshot.WithDetailsf("payload size %d, header says %d", len(payload), hdr.PayloadSize)
	}
	if murmur3.Sum64(payload) != hdr.Checksum {
		return nil, domain.ErrCorruptSnapshot.WithDetails("checksum mismatch")
	}

	return &domain.Snapshot{
		Format:  domain.FormatCompressedV1,
		Payload: payload,
		Meta:    hdr.Meta,
	}, nil
}

func decodeLegacy(data []byte) (*domain.Snapshot, error) {
	if !json.Valid(data) {
		return nil, domain.ErrCorruptSnapshot.WithDetails("legacy snapshot is not valid JSON")
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return &domain.Snapshot{
		Format:  domain.FormatRawJSON,
		Payload: payload,
	}, nil
}

// Checksum returns the content hash recorded for payload in a container.
func Checksum(payload []byte) uint64 {
	return murmur3.Sum64(payload)
}
