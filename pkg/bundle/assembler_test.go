package bundle

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

type rawChunk struct {
	kind    ChunkKind
	payload []byte
}

func decodeChunks(t *testing.T, data []byte) []rawChunk {
	t.Helper()
	var chunks []rawChunk
	i := 0
	for i < len(data) {
		require.GreaterOrEqual(t, len(data), i+3, "truncated chunk frame")
		kind := ChunkKind(data[i])
		length := int(binary.BigEndian.Uint16(data[i+1 : i+3]))
		i += 3
		require.GreaterOrEqual(t, len(data), i+length, "truncated chunk payload")
		chunks = append(chunks, rawChunk{kind: kind, payload: data[i : i+length]})
		i += length
	}
	return chunks
}

func kindsOf(chunks []rawChunk) []ChunkKind {
	out := make([]ChunkKind, len(chunks))
	for i, c := range chunks {
		out[i] = c.kind
	}
	return out
}

func countKind(chunks []rawChunk, kind ChunkKind) int {
	n := 0
	for _, c := range chunks {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func TestAssembleFolderUnderHome(t *testing.T) {
	asm := NewAssembler()
	asm.AddFolder("~/s")

	out, err := asm.Assemble()
	require.NoError(t, err)
	require.Empty(t, asm.Problems())

	chunks := decodeChunks(t, out)
	require.Equal(t, ChunkHeader, chunks[0].kind)
	require.Equal(t, 1, countKind(chunks, ChunkFolder), "exactly one folder chunk for ~/s")
	require.Equal(t, 1, countKind(chunks, ChunkPathHomeRelative), "one home-relative entry for ~")
}

func TestAssembleChownSplitsIntoChownAndChgroup(t *testing.T) {
	asm := NewAssembler()
	asm.AddChown("/e", "alice:staff", true)

	out, err := asm.Assemble()
	require.NoError(t, err)

	chunks := decodeChunks(t, out)
	require.Equal(t, 1, countKind(chunks, ChunkChown))
	require.Equal(t, 1, countKind(chunks, ChunkChgroup))

	for _, c := range chunks {
		if c.kind == ChunkChown || c.kind == ChunkChgroup {
			recursive := c.payload[len(c.payload)-1]
			require.Equal(t, byte(1), recursive, "recursive flag must propagate to both chunks")
		}
	}
}

func TestAssembleLaunchArgv(t *testing.T) {
	asm := NewAssembler()
	asm.AddLaunch([]string{"/bin/sh", "-c", "echo hi"})

	out, err := asm.Assemble()
	require.NoError(t, err)

	chunks := decodeChunks(t, out)
	require.Equal(t, 1, countKind(chunks, ChunkLaunch))
	for _, c := range chunks {
		if c.kind == ChunkLaunch {
			require.Equal(t, byte(3), c.payload[0], "argv count must be 3")
			require.Len(t, c.payload, 1+2*3)
		}
	}
}

func TestAssembleLaunchRejectsEmptyArgv(t *testing.T) {
	asm := NewAssembler()
	asm.AddLaunch(nil)

	_, err := asm.Assemble()
	require.ErrorIs(t, err, ErrNoArtifact)
	require.Len(t, asm.Problems(), 1)
	require.Equal(t, ArgvRange, asm.Problems()[0].Kind)
}

func TestAssembleDuplicateTargetFails(t *testing.T) {
	asm := NewAssembler()
	asm.AddContentsFile("/a", "one")
	asm.AddContentsFile("/a", "two")

	_, err := asm.Assemble()
	require.ErrorIs(t, err, ErrNoArtifact)
	require.Equal(t, DuplicateTarget, asm.Problems()[0].Kind)
}

func TestAssembleCompressRoundTrip(t *testing.T) {
	asm := NewAssembler()
	asm.AddContentsFile("/a", "x")

	uncompressed, err := asm.Assemble()
	require.NoError(t, err)

	compressed, err := Compress(uncompressed)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, uncompressed, decompressed)
}
