// Package wire implements the canonical-byte-order codec for algorithm
// messages that cross the network (spec.md §3, §6). Multi-byte integer
// fields are encoded big-endian ("network byte order"), mirroring the
// htons/ntohl conversions original_source's C implementation performed
// by hand. pkg/dme/transport only frames and carries the raw bytes;
// each algorithm handler calls its Decode function here in OnMessage
// and works on the resulting host-order struct.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/renan-campos/go-dme/pkg/dme/types"
)

var (
	// ErrTruncated is returned when a payload is shorter than its tag
	// requires.
	ErrTruncated = fmt.Errorf("dme/wire: truncated payload")
	// ErrUnknownTag is returned when a payload's tag byte does not match
	// any message this codec knows how to decode.
	ErrUnknownTag = fmt.Errorf("dme/wire: unknown message tag")
)

// EncodeRicart serializes a Ricart-Agrawala message: tag(1) ts(8) from(4).
func EncodeRicart(m types.RicartMessage) []byte {
	buf := make([]byte, 1+8+4)
	buf[0] = byte(m.Tag)
	binary.BigEndian.PutUint64(buf[1:9], m.Timestamp)
	binary.BigEndian.PutUint32(buf[9:13], uint32(m.From))
	return buf
}

// DecodeRicart parses a payload produced by EncodeRicart.
func DecodeRicart(b []byte) (types.RicartMessage, error) {
	if len(b) < 13 {
		return types.RicartMessage{}, ErrTruncated
	}
	tag := types.RicartTag(b[0])
	if tag != types.RicartRequest && tag != types.RicartReply {
		return types.RicartMessage{}, ErrUnknownTag
	}
	return types.RicartMessage{
		Tag:       tag,
		Timestamp: binary.BigEndian.Uint64(b[1:9]),
		From:      types.NodeID(binary.BigEndian.Uint32(b[9:13])),
	}, nil
}

// EncodeMaekawa serializes a Maekawa message: tag(1) ts(8) from(4).
func EncodeMaekawa(m types.MaekawaMessage) []byte {
	buf := make([]byte, 1+8+4)
	buf[0] = byte(m.Tag)
	binary.BigEndian.PutUint64(buf[1:9], m.Timestamp)
	binary.BigEndian.PutUint32(buf[9:13], uint32(m.From))
	return buf
}

// DecodeMaekawa parses a payload produced by EncodeMaekawa.
func DecodeMaekawa(b []byte) (types.MaekawaMessage, error) {
	if len(b) < 13 {
		return types.MaekawaMessage{}, ErrTruncated
	}
	tag := types.MaekawaTag(b[0])
	if tag > types.MaekawaRelease {
		return types.MaekawaMessage{}, ErrUnknownTag
	}
	return types.MaekawaMessage{
		Tag:       tag,
		Timestamp: binary.BigEndian.Uint64(b[1:9]),
		From:      types.NodeID(binary.BigEndian.Uint32(b[9:13])),
	}, nil
}

// EncodeFuchi serializes a Fuchi message: tag(1) ts(8, signed) sender(4)
// oldestStamp(8, signed) vecLen(2) R[vecLen](8 each, signed)
// F[vecLen](8 each, signed). R/F are encoded at full length every time;
// callers needing to omit one (e.g. FINISH carries no R) pass nil and
// the decoder receives a vector of NullTime entries.
func EncodeFuchi(m types.FuchiMessage) []byte {
	n := len(m.R)
	if len(m.F) > n {
		n = len(m.F)
	}
	buf := make([]byte, 1+8+4+8+2+n*8+n*8)
	off := 0
	buf[off] = byte(m.Tag)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.Timestamp))
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(m.Sender))
	off += 4
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(m.OldestStamp))
	off += 8
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(n))
	off += 2
	for i := 0; i < n; i++ {
		var v int64 = types.NullTime
		if i < len(m.R) {
			v = m.R[i]
		}
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(v))
		off += 8
	}
	for i := 0; i < n; i++ {
		var v int64 = types.NullTime
		if i < len(m.F) {
			v = m.F[i]
		}
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(v))
		off += 8
	}
	return buf
}

// DecodeFuchi parses a payload produced by EncodeFuchi.
func DecodeFuchi(b []byte) (types.FuchiMessage, error) {
	if len(b) < 23 {
		return types.FuchiMessage{}, ErrTruncated
	}
	tag := types.FuchiTag(b[0])
	if tag > types.FuchiFinish {
		return types.FuchiMessage{}, ErrUnknownTag
	}
	off := 1
	ts := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	sender := types.NodeID(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	oldest := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+n*16 {
		return types.FuchiMessage{}, ErrTruncated
	}
	r := make(types.FuchiVector, n)
	for i := 0; i < n; i++ {
		r[i] = int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
	}
	f := make(types.FuchiVector, n)
	for i := 0; i < n; i++ {
		f[i] = int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
	}
	return types.FuchiMessage{
		Tag:         tag,
		Timestamp:   ts,
		Sender:      sender,
		R:           r,
		F:           f,
		OldestStamp: oldest,
	}, nil
}
