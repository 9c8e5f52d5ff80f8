package catalog

import (
	"encoding/binary"
	"strings"
)

// RecordSize is the fixed width of every directory record, in all three
// directories (Header, Definition, Meta).
const RecordSize = 32

// RecordsPerPage is the number of fixed-size records that fit in one
// 4096-byte directory page.
const RecordsPerPage = 4096 / RecordSize

const (
	maxTableNameLen  = 23
	maxColumnNameLen = 28
)

// ColumnDef describes one column of a table definition. Type is an
// opaque tag the engine never interprets.
type ColumnDef struct {
	Name string
	Type uint8
	Size uint16
}

// HeaderRecord is the decoded form of one 32-byte Header directory slot.
type HeaderRecord struct {
	nameLen  uint8
	name     string
	defPage  int32
	metaPage int32
}

// DecodeHeaderRecord parses one 32-byte Header record. A zero name length
// means the slot is free and the remaining fields are meaningless. A name
// length above 23 is returned with only the length set, for the caller
// to reject.
func DecodeHeaderRecord(buf []byte) HeaderRecord {
	l := buf[0]
	var rec HeaderRecord
	rec.nameLen = l
	if l == 0 || int(l) > maxTableNameLen {
		return rec
	}
	rec.name = lossyUTF8(buf[1 : 1+int(l)])
	rec.defPage = int32(binary.BigEndian.Uint32(buf[24:28]))
	rec.metaPage = int32(binary.BigEndian.Uint32(buf[28:32]))
	return rec
}

// EncodeHeaderFields writes the name-length, name, def-page and
// meta-page fields of a Header record directly into dst, leaving the
// unspecified padding bytes ([1+L:24)) untouched, matching the format's
// own writer behaviour.
func EncodeHeaderFields(dst []byte, name string, defPage, metaPage int32) {
	l := len(name)
	dst[0] = byte(l)
	copy(dst[1:1+l], name)
	binary.BigEndian.PutUint32(dst[24:28], uint32(defPage))
	binary.BigEndian.PutUint32(dst[28:32], uint32(metaPage))
}

// EncodeDefinitionRecord writes one 32-byte Definition record, zero-padding
// the remainder of the record so that readers never depend on leftover
// bytes (spec.md §9, "Definition record padding").
func EncodeDefinitionRecord(col ColumnDef) [RecordSize]byte {
	var rec [RecordSize]byte
	l := len(col.Name)
	rec[0] = byte(l)
	copy(rec[1:1+l], col.Name)
	rec[1+l] = col.Type
	binary.BigEndian.PutUint16(rec[2+l:4+l], col.Size)
	return rec
}

// DecodeDefinitionRecord parses one 32-byte Definition record. ok is false
// when the record's name length is zero (terminator).
func DecodeDefinitionRecord(buf []byte) (col ColumnDef, ok bool) {
	l := buf[0]
	if l == 0 {
		return ColumnDef{}, false
	}
	name := lossyUTF8(buf[1 : 1+int(l)])
	typ := buf[1+int(l)]
	size := binary.BigEndian.Uint16(buf[2+int(l) : 4+int(l)])
	return ColumnDef{Name: name, Type: typ, Size: size}, true
}

// EncodeMetaRecord writes one 32-byte Meta record holding a relative data
// page offset. A zero offset marks the slot free.
func EncodeMetaRecord(relOffset int32) [RecordSize]byte {
	var rec [RecordSize]byte
	binary.BigEndian.PutUint32(rec[0:4], uint32(relOffset))
	return rec
}

// DecodeMetaRecord reads the relative data page offset from one 32-byte
// Meta record. Zero means the slot is free.
func DecodeMetaRecord(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf[0:4]))
}

// lossyUTF8 substitutes invalid UTF-8 sequences, resolving spec.md §9's
// open question on name encoding: table and column names may contain
// non-UTF-8 bytes on disk, and readers lossy-decode rather than treating
// names as opaque byte slices.
func lossyUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
