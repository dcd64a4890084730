package pipe

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_dirInputUnknownOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "does-not-exist-yet.zip")

	p, err := Resolve(dir, out)
	require.NoError(t, err)

	assert.Equal(t, Dir, p.Left)
	assert.Equal(t, Unknown, p.Right)
	assert.Equal(t, dir, p.InputPath)
	assert.Equal(t, out, p.OutputPath)
}

func TestResolve_fileEndpoints(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello"), 0666))

	p, err := Resolve(name, dir)
	require.NoError(t, err)

	assert.Equal(t, File, p.Left)
	assert.Equal(t, Dir, p.Right)
	assert.Equal(t, name, p.InputPath)
	assert.Equal(t, dir, p.OutputPath)
}

func TestResolve_bufferEndpoints(t *testing.T) {
	in := []byte("some payload")
	out := &bytes.Buffer{}

	p, err := Resolve(in, out)
	require.NoError(t, err)

	assert.Equal(t, Buffer, p.Left)
	assert.Equal(t, Buffer, p.Right)
	assert.Equal(t, in, p.InputBytes)
	assert.Same(t, out, p.OutputBuffer)
	assert.Empty(t, p.InputPath)
	assert.Empty(t, p.OutputPath)
}

func TestResolve_bytesBufferInput(t *testing.T) {
	p, err := Resolve(bytes.NewBufferString("abc"), []byte(nil))
	require.NoError(t, err)

	assert.Equal(t, Buffer, p.Left)
	assert.Equal(t, Buffer, p.Right)
	assert.Equal(t, []byte("abc"), p.InputBytes)
	assert.Nil(t, p.OutputBuffer)
}

func TestResolve_relativePathIsNormalized(t *testing.T) {
	p, err := Resolve("testdata/nope.bin", nil)
	require.NoError(t, err)

	assert.Equal(t, Unknown, p.Left)
	assert.True(t, filepath.IsAbs(p.InputPath), "InputPath %q should be absolute", p.InputPath)
}

func TestResolve_unclassifiable(t *testing.T) {
	p, err := Resolve(42, nil)
	require.NoError(t, err)

	assert.Equal(t, Unknown, p.Left)
	assert.Equal(t, Unknown, p.Right)
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{kind: File, want: "FILE"},
		{kind: Dir, want: "DIRECTORY"},
		{kind: Buffer, want: "BUFFER"},
		{kind: Unknown, want: "UNKNOWN"},
		{kind: Kind(99), want: "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
