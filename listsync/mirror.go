package listsync

import (
	"net/url"
	"sync"
)

// Mirror receives the shareable form of the committed query. Replace must
// not block; the fetch path never waits on it.
type Mirror interface {
	Replace(values url.Values)
}

// MirrorFunc adapts a func to Mirror.
type MirrorFunc func(values url.Values)

// Replace implements Mirror.
func (f MirrorFunc) Replace(values url.Values) { f(values) }

// LocationMirror keeps the last mirrored query as a location string, the way
// a browser history entry would.
type LocationMirror struct {
	path string

	mu      sync.RWMutex
	values  url.Values
	updates int
}

// NewLocationMirror returns a mirror rooted at path ("/" when empty).
func NewLocationMirror(path string) *LocationMirror {
	if path == "" {
		path = "/"
	}
	return &LocationMirror{path: path, values: url.Values{}}
}

// Replace implements Mirror.
func (m *LocationMirror) Replace(values url.Values) {
	cp := url.Values{}
	for k, v := range values {
		cp[k] = append([]string(nil), v...)
	}

	m.mu.Lock()
	m.values = cp
	m.updates++
	m.mu.Unlock()
}

// Values returns a copy of the mirrored parameters.
func (m *LocationMirror) Values() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := url.Values{}
	for k, v := range m.values {
		cp[k] = append([]string(nil), v...)
	}
	return cp
}

// Updates returns how many times Replace was called.
func (m *LocationMirror) Updates() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

// String renders the location, e.g. "/?f=active&q=milk", or the bare path
// for the default query.
func (m *LocationMirror) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if qs := m.values.Encode(); qs != "" {
		return m.path + "?" + qs
	}
	return m.path
}
