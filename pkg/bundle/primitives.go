package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ChunkKind is the single-byte tag that opens every chunk in the artifact
// stream. Values are fixed by the wire format and must never be renumbered.
type ChunkKind uint8

const (
	ChunkHeader            ChunkKind = 0
	ChunkStringASCII       ChunkKind = 1
	ChunkStringUTF16       ChunkKind = 2
	ChunkPathHomeRelative  ChunkKind = 3
	ChunkStringHomeASCII   ChunkKind = 4
	ChunkStringHomeUTF16   ChunkKind = 5
	ChunkFolder            ChunkKind = 20
	ChunkFile              ChunkKind = 21
	ChunkChmod             ChunkKind = 24
	ChunkChown             ChunkKind = 25
	ChunkChgroup           ChunkKind = 26
	ChunkAddUser           ChunkKind = 40
	ChunkAddGroupMember    ChunkKind = 41
	ChunkRemoveUser        ChunkKind = 42
	ChunkRemoveGroupMember ChunkKind = 43
	ChunkBuild             ChunkKind = 80
	ChunkTest              ChunkKind = 81
	ChunkLaunch            ChunkKind = 82
	ChunkCopy              ChunkKind = 83
	ChunkMove              ChunkKind = 84
	ChunkDelete            ChunkKind = 85
)

// HeaderVersion distinguishes an uncompressed stream from a compressed one.
type HeaderVersion uint16

const (
	VersionUncompressed HeaderVersion = 1
	VersionCompressed   HeaderVersion = 2
)

// ref is a 16-bit index into the shared string pool.
type ref uint16

// chunkWriter accumulates chunks into a single byte buffer, matching the
// header-then-payload framing used throughout pkg/archive in the original
// tool: every write goes through one buffer and the length prefix is
// computed from what was actually written, never tracked by hand.
type chunkWriter struct {
	buf bytes.Buffer
}

func newChunkWriter() *chunkWriter {
	return &chunkWriter{}
}

func (w *chunkWriter) writeChunk(kind ChunkKind, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("bundle: chunk payload too large for kind %d: %d bytes", kind, len(payload))
	}
	if err := w.buf.WriteByte(byte(kind)); err != nil {
		return err
	}
	if err := binary.Write(&w.buf, binary.BigEndian, uint16(len(payload))); err != nil {
		return err
	}
	_, err := w.buf.Write(payload)
	return err
}

func (w *chunkWriter) Bytes() []byte { return w.buf.Bytes() }

// payloadWriter builds one chunk's payload bytes.
type payloadWriter struct {
	buf bytes.Buffer
}

func (p *payloadWriter) u8(v uint8) *payloadWriter {
	p.buf.WriteByte(v)
	return p
}

func (p *payloadWriter) u16(v uint16) *payloadWriter {
	binary.Write(&p.buf, binary.BigEndian, v)
	return p
}

func (p *payloadWriter) bool(v bool) *payloadWriter {
	if v {
		p.buf.WriteByte(1)
	} else {
		p.buf.WriteByte(0)
	}
	return p
}

func (p *payloadWriter) ref(r ref) *payloadWriter {
	return p.u16(uint16(r))
}

func (p *payloadWriter) raw(b []byte) *payloadWriter {
	p.buf.Write(b)
	return p
}

func (p *payloadWriter) bytes() []byte { return p.buf.Bytes() }

func writeHeaderChunk(w *chunkWriter, version HeaderVersion) error {
	var p payloadWriter
	p.u16(uint16(version)).u16(0)
	return w.writeChunk(ChunkHeader, p.bytes())
}
