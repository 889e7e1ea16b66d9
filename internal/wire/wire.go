// Package wire implements the binary frame format that binds the sender and
// receiver pipelines: one logical frame maps to exactly one message on the
// transport.
//
// The explicit-layout struct, Write/Read pair, and "reject anything that
// doesn't exactly consume its declared length" discipline are grounded on
// the teacher repository's internal/pmtiles/header.go and directory.go (the
// 127-byte PMTiles header and its variable-length directory records), and
// on other_examples' sadewadee-maboo internal/protocol/wire.go (the
// magic+type+length-prefixed frame the maboo bridge speaks over its
// bidirectional channel). Unlike both of those, every integer here is
// big-endian per spec, and there is no varint/gzip layer: frames are meant
// to cross the wire one at a time, not be indexed later.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pixeldelta/mirror/internal/pool"
)

// Kind tags the five frame shapes the wire format carries.
type Kind uint8

const (
	KindEmpty    Kind = 0x00
	KindKeyframe Kind = 0x01
	KindDelta    Kind = 0x02
	KindResync   Kind = 0x10
	KindInput    Kind = 0x20
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "Empty"
	case KindKeyframe:
		return "Keyframe"
	case KindDelta:
		return "Delta"
	case KindResync:
		return "Resync"
	case KindInput:
		return "Input"
	default:
		return fmt.Sprintf("Kind(0x%02x)", uint8(k))
	}
}

// prefixSize is kind(1) + seq(4, u32) + ts(4, u32). See SPEC_FULL.md §3 for
// why ts is widened from the sketched u16 to u32.
const prefixSize = 9

// reservedMask isolates the high nibble of the kind byte. The only kinds
// with a non-zero high nibble are the client→server KindResync (0x10) and
// KindInput (0x20); any other kind byte with this nibble set is malformed.
const reservedMask = 0xF0

// MalformedError reports a frame that failed to parse: an unknown kind, a
// non-zero reserved nibble, or a declared length that didn't exactly
// consume the message body.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "wire: malformed frame: " + e.Reason }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Record is implemented by every frame shape. Kind is a total, closed match
// over the five wire kinds — the Go mapping of spec.md's "dynamic message
// dispatch over frame kinds".
type Record interface {
	Kind() Kind
}

// Empty is an "nothing changed" heartbeat frame.
type Empty struct {
	Seq uint32
	TS  uint32
}

func (Empty) Kind() Kind { return KindEmpty }

// Keyframe replaces the receiver's entire canvas.
type Keyframe struct {
	Seq     uint32
	TS      uint32
	W, H    uint16
	Tile    uint16
	Payload []byte
}

func (Keyframe) Kind() Kind { return KindKeyframe }

// TileRecord is one changed cell within a Delta frame.
type TileRecord struct {
	TX, TY uint16
	TW, TH uint16
	Data   []byte
}

// Delta carries only the tiles that changed since the last transmitted
// frame, in raster order.
type Delta struct {
	Seq   uint32
	TS    uint32
	Tiles []TileRecord
}

func (Delta) Kind() Kind { return KindDelta }

// Resync is the client's request for a fresh Keyframe.
type Resync struct {
	Seq uint32
	TS  uint32
}

func (Resync) Kind() Kind { return KindResync }

// Input is an opaque client→server input-event payload. The core carries it
// but never interprets its contents.
type Input struct {
	Seq     uint32
	TS      uint32
	Payload []byte
}

func (Input) Kind() Kind { return KindInput }

// Write serializes rec and writes it as one complete wire message.
func Write(w io.Writer, rec Record) error {
	buf, err := Encode(rec)
	if err != nil {
		return err
	}
	return writeAll(w, buf)
}

// Encode serializes rec to a standalone byte slice — the shape a
// message-oriented transport (one gorilla/websocket WriteMessage call per
// frame) wants directly, without an intermediate io.Writer.
func Encode(rec Record) ([]byte, error) {
	switch r := rec.(type) {
	case Empty:
		return encodePrefix(KindEmpty, r.Seq, r.TS), nil
	case Keyframe:
		buf := encodePrefix(KindKeyframe, r.Seq, r.TS)
		head := make([]byte, 10)
		binary.BigEndian.PutUint16(head[0:2], r.W)
		binary.BigEndian.PutUint16(head[2:4], r.H)
		binary.BigEndian.PutUint16(head[4:6], r.Tile)
		binary.BigEndian.PutUint32(head[6:10], uint32(len(r.Payload)))
		buf = append(buf, head...)
		buf = append(buf, r.Payload...)
		return buf, nil
	case Delta:
		buf := encodePrefix(KindDelta, r.Seq, r.TS)
		n := make([]byte, 2)
		binary.BigEndian.PutUint16(n, uint16(len(r.Tiles)))
		buf = append(buf, n...)
		for _, t := range r.Tiles {
			rec := make([]byte, 12)
			binary.BigEndian.PutUint16(rec[0:2], t.TX)
			binary.BigEndian.PutUint16(rec[2:4], t.TY)
			binary.BigEndian.PutUint16(rec[4:6], t.TW)
			binary.BigEndian.PutUint16(rec[6:8], t.TH)
			binary.BigEndian.PutUint32(rec[8:12], uint32(len(t.Data)))
			buf = append(buf, rec...)
			buf = append(buf, t.Data...)
		}
		return buf, nil
	case Resync:
		return encodePrefix(KindResync, r.Seq, r.TS), nil
	case Input:
		buf := encodePrefix(KindInput, r.Seq, r.TS)
		plen := make([]byte, 2)
		binary.BigEndian.PutUint16(plen, uint16(len(r.Payload)))
		buf = append(buf, plen...)
		buf = append(buf, r.Payload...)
		return buf, nil
	default:
		return nil, fmt.Errorf("wire: unknown record type %T", rec)
	}
}

func encodePrefix(kind Kind, seq, ts uint32) []byte {
	buf := make([]byte, 0, prefixSize)
	buf = append(buf, byte(kind))
	seqB := make([]byte, 4)
	binary.BigEndian.PutUint32(seqB, seq)
	tsB := make([]byte, 4)
	binary.BigEndian.PutUint32(tsB, ts)
	buf = append(buf, seqB...)
	buf = append(buf, tsB...)
	return buf
}

func writeAll(w io.Writer, buf []byte) error {
	_, err := w.Write(buf)
	return err
}

// Read parses exactly one wire message out of buf, which must hold the
// entire message (the transport is message-oriented: one recv yields one
// whole message, per spec.md §6). Any unconsumed trailing byte is an error.
func Read(buf []byte) (Record, error) {
	if len(buf) < prefixSize {
		return nil, malformed("message is %d bytes, shorter than the %d-byte prefix", len(buf), prefixSize)
	}
	kindByte := buf[0]
	kind := Kind(kindByte)
	if kindByte&reservedMask != 0 && kind != KindResync && kind != KindInput {
		return nil, malformed("reserved nibble set in kind byte 0x%02x", kindByte)
	}
	seq := binary.BigEndian.Uint32(buf[1:5])
	ts := binary.BigEndian.Uint32(buf[5:9])
	body := buf[prefixSize:]

	switch kind {
	case KindEmpty:
		if len(body) != 0 {
			return nil, malformed("Empty frame has %d trailing bytes", len(body))
		}
		return Empty{Seq: seq, TS: ts}, nil

	case KindKeyframe:
		if len(body) < 10 {
			return nil, malformed("Keyframe header truncated: %d bytes", len(body))
		}
		w := binary.BigEndian.Uint16(body[0:2])
		h := binary.BigEndian.Uint16(body[2:4])
		tile := binary.BigEndian.Uint16(body[4:6])
		plen := binary.BigEndian.Uint32(body[6:10])
		rest := body[10:]
		if uint64(len(rest)) != uint64(plen) {
			return nil, malformed("Keyframe declares payload_len=%d but %d bytes remain", plen, len(rest))
		}
		payload := pool.Get(int(plen))
		copy(payload, rest)
		return Keyframe{Seq: seq, TS: ts, W: w, H: h, Tile: tile, Payload: payload}, nil

	case KindDelta:
		if len(body) < 2 {
			return nil, malformed("Delta header truncated: %d bytes", len(body))
		}
		n := binary.BigEndian.Uint16(body[0:2])
		rest := body[2:]
		tiles := make([]TileRecord, 0, n)
		for i := uint16(0); i < n; i++ {
			if len(rest) < 12 {
				return nil, malformed("Delta tile record %d truncated", i)
			}
			tx := binary.BigEndian.Uint16(rest[0:2])
			ty := binary.BigEndian.Uint16(rest[2:4])
			tw := binary.BigEndian.Uint16(rest[4:6])
			th := binary.BigEndian.Uint16(rest[6:8])
			dlen := binary.BigEndian.Uint32(rest[8:12])
			rest = rest[12:]
			if uint64(len(rest)) < uint64(dlen) {
				return nil, malformed("Delta tile record %d declares data_len=%d but only %d bytes remain", i, dlen, len(rest))
			}
			data := pool.Get(int(dlen))
			copy(data, rest[:dlen])
			rest = rest[dlen:]
			tiles = append(tiles, TileRecord{TX: tx, TY: ty, TW: tw, TH: th, Data: data})
		}
		if len(rest) != 0 {
			return nil, malformed("Delta frame has %d unconsumed trailing bytes", len(rest))
		}
		return Delta{Seq: seq, TS: ts, Tiles: tiles}, nil

	case KindResync:
		if len(body) != 0 {
			return nil, malformed("Resync frame has %d trailing bytes", len(body))
		}
		return Resync{Seq: seq, TS: ts}, nil

	case KindInput:
		if len(body) < 2 {
			return nil, malformed("Input header truncated: %d bytes", len(body))
		}
		plen := binary.BigEndian.Uint16(body[0:2])
		rest := body[2:]
		if int(plen) != len(rest) {
			return nil, malformed("Input declares payload_len=%d but %d bytes remain", plen, len(rest))
		}
		payload := pool.Get(int(plen))
		copy(payload, rest)
		return Input{Seq: seq, TS: ts, Payload: payload}, nil

	default:
		return nil, malformed("unknown kind byte 0x%02x", kindByte)
	}
}
