package converter

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// minimalGLB returns a 12-byte binary glTF header
func minimalGLB() []byte {
	buf := make([]byte, 12)
	copy(buf, "glTF")
	binary.LittleEndian.PutUint32(buf[4:], 2)
	binary.LittleEndian.PutUint32(buf[8:], 12)
	return buf
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestConvertGLBToSTL(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "robot.glb", minimalGLB())
	dst := filepath.Join(dir, "robot.stl")

	p := NewPlaceholder(testLogger())
	require.NoError(t, p.ConvertGLBToSTL(src, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "solid robot\n"))
	assert.True(t, strings.HasSuffix(string(out), "endsolid robot\n"))
	assert.Equal(t, 2, strings.Count(string(out), "endfacet"))
	assert.Equal(t, 6, strings.Count(string(out), "vertex "))
}

func TestConvertAcceptsUnrecognisedSignature(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "demo.glb", []byte("0123456789"))
	dst := filepath.Join(dir, "demo.stl")

	var logs bytes.Buffer
	p := NewPlaceholder(slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, p.ConvertGLBToSTL(src, dst))

	assert.FileExists(t, dst)
	assert.Contains(t, logs.String(), "may not be a valid GLB")
}

func TestConvertIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "same.glb", []byte("first body"))
	p := NewPlaceholder(testLogger())

	require.NoError(t, p.ConvertGLBToSTL(a, filepath.Join(dir, "one.stl")))
	require.NoError(t, os.WriteFile(a, minimalGLB(), 0644))
	require.NoError(t, p.ConvertGLBToSTL(a, filepath.Join(dir, "two.stl")))

	one, err := os.ReadFile(filepath.Join(dir, "one.stl"))
	require.NoError(t, err)
	two, err := os.ReadFile(filepath.Join(dir, "two.stl"))
	require.NoError(t, err)
	assert.Equal(t, one, two)
}

func TestEmptySourceIsRejected(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "empty.glb", nil)
	p := NewPlaceholder(testLogger())

	err := p.ConvertGLBToSTL(src, filepath.Join(dir, "empty.stl"))
	require.ErrorIs(t, err, ErrEmptySource)
	assert.EqualError(t, err, "GLB file is empty")
	assert.NoFileExists(t, filepath.Join(dir, "empty.stl"))

	err = p.GeneratePreviewImage(src, filepath.Join(dir, "empty.png"))
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestMissingSource(t *testing.T) {
	p := NewPlaceholder(testLogger())
	err := p.ConvertGLBToSTL(filepath.Join(t.TempDir(), "missing.glb"), filepath.Join(t.TempDir(), "x.stl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGeneratePreviewImage(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "demo.glb", minimalGLB())
	dst := filepath.Join(dir, "demo_preview.png")

	p := NewPlaceholder(testLogger())
	require.NoError(t, p.GeneratePreviewImage(src, dst))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 1, cfg.Width)
	assert.Equal(t, 1, cfg.Height)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.DirExists(t, dir)
	require.NoError(t, EnsureDir(dir))
}
