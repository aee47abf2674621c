package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
)

func TestNewFileEmitterCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "events.log")

	emitter, err := NewFileEmitter(configtypes.EventFileConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)
	defer emitter.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestNewFileEmitterRejectsBadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	_, err := NewFileEmitter(configtypes.EventFileConfig{
		Path:     path,
		Template: "{bogus_field}",
	}, zap.NewNop())

	assert.Error(t, err)
}

func TestFileEmitterWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	emitter, err := NewFileEmitter(configtypes.EventFileConfig{
		Path:     path,
		Template: "{event_type}\t{provider}\t{request_url}",
	}, zap.NewNop())
	require.NoError(t, err)

	emitter.Emit(&Event{
		EventType:  TypeCacheMiss,
		Provider:   "examplephotos",
		RequestURL: "http://photos.example.com/oembed?url=x",
		CreatedAt:  time.Now(),
	})
	emitter.Emit(&Event{
		EventType: TypeRefreshFailed,
		CreatedAt: time.Now(),
	})
	require.NoError(t, emitter.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "\"cache_miss\"\t\"examplephotos\"\t\"http://photos.example.com/oembed?url=x\"", lines[0])
	assert.Equal(t, "\"refresh_failed\"\t-\t-", lines[1])
}

func TestFileEmitterDefaultTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")

	emitter, err := NewFileEmitter(configtypes.EventFileConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)

	emitter.Emit(sampleEvent())
	require.NoError(t, emitter.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"cache_hit\"")
	assert.Contains(t, string(data), "2026-03-14T09:26:53.589Z")
}
