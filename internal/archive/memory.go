package archive

import (
	"context"
	"strings"
	"sync"

	"github.com/driftweb/crawlindex/internal/crawlerr"
)

// Memory is an in-memory Handle used by tests in place of a real archive
// daemon connection. Every WriteFile/Unlink call appends to an ordered
// diff log, so DiffStream and Watch behave the way a real archive would.
type Memory struct {
	mu sync.Mutex

	url      string
	writable bool
	domain   string

	version int64
	files   map[string][]byte
	history []DiffEntry

	watchers []chan Event
}

// NewMemory constructs an empty in-memory archive at the given origin.
func NewMemory(url string, writable bool) *Memory {
	return &Memory{
		url:      url,
		writable: writable,
		files:    make(map[string][]byte),
	}
}

func (m *Memory) URL() string      { return m.url }
func (m *Memory) Writable() bool   { return m.writable }
func (m *Memory) Domain() string   { return m.domain }
func (m *Memory) SetDomain(d string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domain = d
}

func (m *Memory) Info(ctx context.Context) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{Version: m.version}, nil
}

func (m *Memory) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, crawlerr.New(crawlerr.KindArchiveUnreadable, "no such file: %s", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile writes path and bumps the archive version, appending a Put
// diff entry and notifying watchers.
func (m *Memory) WriteFile(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[path] = buf
	m.history = append(m.history, DiffEntry{Type: DiffPut, Name: path, Version: m.version})
	m.notifyLocked()
	return nil
}

func (m *Memory) Mkdir(ctx context.Context, path string) error {
	return nil
}

// Unlink deletes path and bumps the archive version, appending a Del diff
// entry and notifying watchers.
func (m *Memory) Unlink(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return crawlerr.New(crawlerr.KindNotFound, "no such file: %s", path)
	}
	delete(m.files, path)
	m.version++
	m.history = append(m.history, DiffEntry{Type: DiffDel, Name: path, Version: m.version})
	m.notifyLocked()
	return nil
}

func (m *Memory) Stat(ctx context.Context, path string) (Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return Stat{}, crawlerr.New(crawlerr.KindNotFound, "no such file: %s", path)
	}
	return Stat{Size: int64(len(data))}, nil
}

func (m *Memory) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(path, "/") + "/"
	var entries []DirEntry
	seen := make(map[string]bool)
	for name, data := range m.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		entries = append(entries, DirEntry{Name: rest, Stat: Stat{Size: int64(len(data))}})
	}
	return entries, nil
}

// DiffStream returns every recorded change to rootPath strictly after
// sinceVersion, in ascending version order (the order they were appended).
func (m *Memory) DiffStream(ctx context.Context, sinceVersion int64, rootPath string) ([]DiffEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(rootPath, "/")
	var out []DiffEntry
	for _, entry := range m.history {
		if entry.Version <= sinceVersion {
			continue
		}
		if prefix != "" && prefix != "/" && !strings.HasPrefix(entry.Name, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *Memory) Watch(ctx context.Context) (<-chan Event, func(), error) {
	m.mu.Lock()
	ch := make(chan Event, 16)
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range m.watchers {
			if w == ch {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

// notifyLocked sends an invalidated event to every watcher, dropping it if
// the watcher's buffer is full (lossy fan-out, per the event-bus design
// note: never a durable log).
func (m *Memory) notifyLocked() {
	for _, w := range m.watchers {
		select {
		case w <- Event{Kind: "invalidated"}:
		default:
		}
	}
}

var _ Handle = (*Memory)(nil)
