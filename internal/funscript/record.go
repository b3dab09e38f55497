package funscript

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// RecordSize is the fixed size of one serialized action.
const RecordSize = 64

// Record field offsets. Bytes from recordReserved to RecordSize are zero.
const (
	offAtS         = 0
	offPos         = 4
	offInTangent   = 6
	offInWeight    = 10
	offOutTangent  = 14
	offOutWeight   = 18
	offTangentMode = 22
	offWeightMode  = 23
	recordReserved = 24
)

var (
	// ErrShortRecord is returned when fewer than RecordSize bytes are available.
	ErrShortRecord = errors.New("action record too short")

	// ErrInvalidHandleMode is returned for a mode tag outside None..Both.
	ErrInvalidHandleMode = errors.New("invalid handle mode")
)

// MarshalRecord encodes a into a new RecordSize buffer.
func MarshalRecord(a Action) []byte {
	return AppendRecord(make([]byte, 0, RecordSize), a)
}

// AppendRecord appends the little-endian record of a to dst.
func AppendRecord(dst []byte, a Action) []byte {
	var rec [RecordSize]byte
	binary.LittleEndian.PutUint32(rec[offAtS:], math.Float32bits(float32(a.AtS)))
	binary.LittleEndian.PutUint16(rec[offPos:], uint16(a.Pos))
	binary.LittleEndian.PutUint32(rec[offInTangent:], math.Float32bits(float32(a.InTangent)))
	binary.LittleEndian.PutUint32(rec[offInWeight:], math.Float32bits(float32(a.InWeight)))
	binary.LittleEndian.PutUint32(rec[offOutTangent:], math.Float32bits(float32(a.OutTangent)))
	binary.LittleEndian.PutUint32(rec[offOutWeight:], math.Float32bits(float32(a.OutWeight)))
	rec[offTangentMode] = byte(a.TangentMode)
	rec[offWeightMode] = byte(a.WeightMode)
	return append(dst, rec[:]...)
}

// UnmarshalRecord decodes the first RecordSize bytes of b.
func UnmarshalRecord(b []byte) (Action, error) {
	if len(b) < RecordSize {
		return Action{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortRecord, len(b), RecordSize)
	}

	tm := HandleMode(b[offTangentMode])
	if !tm.Valid() {
		return Action{}, fmt.Errorf("tangent mode: %w: %d", ErrInvalidHandleMode, b[offTangentMode])
	}
	wm := HandleMode(b[offWeightMode])
	if !wm.Valid() {
		return Action{}, fmt.Errorf("weight mode: %w: %d", ErrInvalidHandleMode, b[offWeightMode])
	}

	return Action{
		AtS:         float64(readFloat32(b[offAtS:])),
		Pos:         int16(binary.LittleEndian.Uint16(b[offPos:])),
		InTangent:   float64(readFloat32(b[offInTangent:])),
		InWeight:    float64(readFloat32(b[offInWeight:])),
		OutTangent:  float64(readFloat32(b[offOutTangent:])),
		OutWeight:   float64(readFloat32(b[offOutWeight:])),
		TangentMode: tm,
		WeightMode:  wm,
	}, nil
}

// AppendRecords appends one record per action in set order.
func AppendRecords(dst []byte, s *ActionSet) []byte {
	for _, a := range s.All() {
		dst = AppendRecord(dst, a)
	}
	return dst
}

// UnmarshalRecords decodes a contiguous array of records into a new set.
func UnmarshalRecords(b []byte) (*ActionSet, error) {
	if len(b)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: trailing %d bytes", ErrShortRecord, len(b)%RecordSize)
	}
	s := &ActionSet{actions: make([]Action, 0, len(b)/RecordSize)}
	for off := 0; off < len(b); off += RecordSize {
		a, err := UnmarshalRecord(b[off:])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", off/RecordSize, err)
		}
		s.Upsert(a)
	}
	return s, nil
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
