// Package wire implements the length-prefixed message framing shared by
// every service on the session server: an 8-byte magic, an 8-byte little
// endian type symbol, an 8-byte little endian body length, and the body
// itself.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the fixed constant that must begin every message. Its absence
// means the stream has desynchronised and the connection must be closed.
var Magic = [8]byte{0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB}

// HeaderSize is magic + type_symbol + body_length.
const HeaderSize = 8 + 8 + 8

// MaxMessageSize is the recommended cap on body_length; bodies larger than
// this desync the connection rather than risk unbounded allocation.
const MaxMessageSize = 1 << 20 // 1 MiB

// ErrDesync is returned when the magic does not match or the declared body
// length exceeds MaxMessageSize. The caller must close the connection.
var ErrDesync = errors.New("wire: framing desync")

// RawMessage is one decoded message before it is interpreted by a message
// registry: a type symbol and its raw body bytes.
type RawMessage struct {
	Type int64
	Body []byte
}

// Packet is an ordered sequence of one or more messages decoded from a
// single feed of transport bytes.
type Packet []RawMessage

// EncodeMessage writes one framed message (header + body) to buf.
func EncodeMessage(buf *bytes.Buffer, typeSymbol int64, body []byte) {
	buf.Write(Magic[:])

	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(typeSymbol))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(body)))
	buf.Write(hdr[:])

	buf.Write(body)
}

// EncodePacket frames every message into a single contiguous buffer,
// suitable for a single transport write (spec's "one frame" case).
func EncodePacket(messages ...RawMessage) []byte {
	var buf bytes.Buffer
	for _, m := range messages {
		EncodeMessage(&buf, m.Type, m.Body)
	}
	return buf.Bytes()
}

// Decoder incrementally decodes a byte stream into whole messages,
// buffering any trailing partial message across Feed calls so that a single
// logical packet may arrive split across multiple transport reads.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly-read bytes and returns every whole message that can
// now be decoded, in arrival order. Bytes belonging to a not-yet-complete
// trailing message remain buffered for the next Feed call. It returns
// ErrDesync (non-recoverable: close the connection) on a magic mismatch or
// an oversized body_length.
func (d *Decoder) Feed(data []byte) (Packet, error) {
	d.buf.Write(data)

	var out Packet
	for {
		avail := d.buf.Bytes()
		if len(avail) < HeaderSize {
			break
		}

		if !bytes.Equal(avail[0:8], Magic[:]) {
			return out, fmt.Errorf("%w: bad magic", ErrDesync)
		}

		typeSymbol := int64(binary.LittleEndian.Uint64(avail[8:16]))
		bodyLen := binary.LittleEndian.Uint64(avail[16:24])
		if bodyLen > MaxMessageSize {
			return out, fmt.Errorf("%w: body_length %d exceeds max %d", ErrDesync, bodyLen, MaxMessageSize)
		}

		total := HeaderSize + int(bodyLen)
		if len(avail) < total {
			break
		}

		body := make([]byte, bodyLen)
		copy(body, avail[HeaderSize:total])
		out = append(out, RawMessage{Type: typeSymbol, Body: body})

		d.buf.Next(total)
	}

	return out, nil
}
