package api

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sensorhub/annotator/internal/editor"
	"github.com/sensorhub/annotator/internal/logger"
	"github.com/sensorhub/annotator/internal/notification"
	"github.com/sensorhub/annotator/internal/observation"
)

// SessionFactory builds the editor for a file. Save reports for the session
// must be delivered to toasts so the host can drain them.
type SessionFactory func(file observation.FileRef, toasts *notification.ToastQueue) *editor.Session

// SessionEntry is one open file and its toast queue.
type SessionEntry struct {
	Session *editor.Session
	Toasts  *notification.ToastQueue
}

// SessionRegistry holds one editor session per file id. Sessions idle for
// longer than the ttl are closed and dropped.
type SessionRegistry struct {
	mu            sync.Mutex
	cache         *cache.Cache
	factory       SessionFactory
	toastCapacity int
	log           logger.Logger
}

// NewSessionRegistry creates a registry. A zero ttl keeps sessions until removed.
func NewSessionRegistry(factory SessionFactory, ttl time.Duration, toastCapacity int, log logger.Logger) *SessionRegistry {
	if log == nil {
		log = logger.Global().Module("api")
	}
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, ttl/2
	}

	r := &SessionRegistry{
		cache:         cache.New(expiration, cleanup),
		factory:       factory,
		toastCapacity: toastCapacity,
		log:           log,
	}
	r.cache.OnEvicted(func(key string, v any) {
		if e, ok := v.(*SessionEntry); ok {
			e.Session.Close()
			r.log.Debug("editor session closed", logger.String("file_id", key))
		}
	})
	return r
}

func sessionKey(fileID int64) string {
	return strconv.FormatInt(fileID, 10)
}

// Open returns the session for file, creating it when none is open.
// The bool reports whether the session was created by this call.
func (r *SessionRegistry) Open(file observation.FileRef) (*SessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(file.ID)
	if v, ok := r.cache.Get(key); ok {
		e := v.(*SessionEntry)
		r.cache.SetDefault(key, e)
		return e, false
	}

	toasts := notification.NewToastQueue(r.toastCapacity)
	e := &SessionEntry{Session: r.factory(file, toasts), Toasts: toasts}
	r.cache.SetDefault(key, e)
	r.log.Debug("editor session opened",
		logger.Int64("file_id", file.ID),
		logger.String("session_id", e.Session.ID()))
	return e, true
}

// Get returns the open session for fileID and refreshes its idle timer.
func (r *SessionRegistry) Get(fileID int64) (*SessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(fileID)
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*SessionEntry)
	r.cache.SetDefault(key, e)
	return e, true
}

// Remove closes and drops the session for fileID.
func (r *SessionRegistry) Remove(fileID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(sessionKey(fileID))
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every open session.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache.Items() {
		r.cache.Delete(key)
	}
}
