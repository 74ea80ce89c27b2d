package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

func (f *fakeTranscriber) Close() error { return nil }

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranscribe(t *testing.T) {
	p := NewProcessor(&fakeTranscriber{text: "book a cleaning"}, nil, t.TempDir(), testLogger())

	assert.Equal(t, "book a cleaning", p.Transcribe(context.Background(), []byte("pcm")))
}

func TestTranscribeDegradesOnError(t *testing.T) {
	p := NewProcessor(&fakeTranscriber{err: errors.New("quota")}, nil, t.TempDir(), testLogger())

	assert.Equal(t, "", p.Transcribe(context.Background(), []byte("pcm")))
}

func TestTranscribeWithoutTranscriber(t *testing.T) {
	p := NewProcessor(nil, nil, t.TempDir(), testLogger())

	assert.Equal(t, "", p.Transcribe(context.Background(), []byte("pcm")))
}

func TestGenerateWritesFile(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(nil, &fakeSynthesizer{audio: []byte("mp3-bytes")}, dir, testLogger())

	url := p.Generate(context.Background(), "your appointment is booked")

	require.True(t, strings.HasPrefix(url, URLPrefix+"/response_"), url)
	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, URLPrefix+"/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), data)
}

func TestGenerateDegradesOnError(t *testing.T) {
	p := NewProcessor(nil, &fakeSynthesizer{err: errors.New("voice missing")}, t.TempDir(), testLogger())

	assert.Equal(t, "", p.Generate(context.Background(), "hello"))
}

func TestGenerateEmptyText(t *testing.T) {
	p := NewProcessor(nil, &fakeSynthesizer{audio: []byte("x")}, t.TempDir(), testLogger())

	assert.Equal(t, "", p.Generate(context.Background(), ""))
}
