package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorhub/annotator/internal/editor"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/notification"
	"github.com/sensorhub/annotator/internal/observation"
)

func countingFactory(count *int) SessionFactory {
	return func(file observation.FileRef, toasts *notification.ToastQueue) *editor.Session {
		*count++
		log := logger.NewDiscardLogger()
		return editor.New(file, editor.Deps{
			Source:   &memoryBackend{},
			Notifier: notification.NewService(log, toasts),
			Logger:   log,
		}, editor.Options{}, editor.Callbacks{})
	}
}

func TestRegistryOpenReusesSession(t *testing.T) {
	t.Parallel()
	var created int
	r := NewSessionRegistry(countingFactory(&created), 0, 5, logger.NewDiscardLogger())
	defer r.Close()

	first, isNew := r.Open(observation.FileRef{ID: 1, RecordedAt: recordedAt})
	require.True(t, isNew)
	second, isNew := r.Open(observation.FileRef{ID: 1, RecordedAt: recordedAt})
	assert.False(t, isNew)
	assert.Same(t, first, second)
	_, _ = r.Open(observation.FileRef{ID: 2, RecordedAt: recordedAt})

	assert.Equal(t, 2, created)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Session.File().ID)

	r.Remove(1)
	_, ok = r.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	r.Close()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	t.Parallel()
	var created int
	r := NewSessionRegistry(countingFactory(&created), 40*time.Millisecond, 5, logger.NewDiscardLogger())
	defer r.Close()

	_, _ = r.Open(observation.FileRef{ID: 1, RecordedAt: recordedAt})
	assert.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, ok := r.Get(1)
	assert.False(t, ok)
}
