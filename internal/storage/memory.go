package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alcyxob/notes-app/internal/domain"
)

// MemoryStorage keeps objects in process memory. It backs the "memory" storage
// driver for single-process development and the tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string

	// remaining injected transient failures
	failNext int
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	if baseURL == "" {
		baseURL = "memory://notes"
	}
	return &MemoryStorage{objects: make(map[string][]byte), baseURL: baseURL}
}

// FailNext injects n transient failures.
func (m *MemoryStorage) FailNext(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

func (m *MemoryStorage) injected(op, handle string) error {
	if m.failNext > 0 {
		m.failNext--
		return unavailable(op, handle, fmt.Errorf("injected failure"))
	}
	return nil
}

func (m *MemoryStorage) Put(ctx context.Context, handle string, data []byte, contentType string) (domain.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileRef{}, unavailable("put", handle, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("put", handle); err != nil {
		return domain.FileRef{}, err
	}
	m.objects[handle] = append([]byte(nil), data...)
	return domain.FileRef{URL: publicURL(m.baseURL, handle), Handle: handle}, nil
}

func (m *MemoryStorage) Get(ctx context.Context, handle string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get", handle, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("get", handle); err != nil {
		return nil, err
	}
	data, ok := m.objects[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, handle)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("delete", handle); err != nil {
		return err
	}
	delete(m.objects, handle)
	return nil
}

func (m *MemoryStorage) PresignedDownloadURL(ctx context.Context, handle string, expires time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[handle]; !ok {
		return "", fmt.Errorf("%w: %q", ErrObjectNotFound, handle)
	}
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	return fmt.Sprintf("%s?expires=%d", publicURL(m.baseURL, handle), int64(expires.Seconds())), nil
}

// Has reports whether handle is stored.
func (m *MemoryStorage) Has(handle string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[handle]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
