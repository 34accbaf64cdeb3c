package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
)

// ObjectStore hands out URLs that reference an uploaded document until released.
type ObjectStore interface {
	Create(src domain.Source) string
	Open(url string) (domain.Source, bool)
	Release(url string) bool
}

// MemoryObjects is an in-process ObjectStore. URLs are prefix + random ID.
type MemoryObjects struct {
	mu       sync.RWMutex
	prefix   string
	objects  map[string]domain.Source
	created  int
	released int
}

// NewMemoryObjects creates an empty store whose URLs start with prefix.
func NewMemoryObjects(prefix string) *MemoryObjects {
	return &MemoryObjects{
		prefix:  prefix,
		objects: make(map[string]domain.Source),
	}
}

// Create registers src and returns its URL.
func (o *MemoryObjects) Create(src domain.Source) string {
	url := o.prefix + uuid.NewString()

	o.mu.Lock()
	o.objects[url] = src
	o.created++
	o.mu.Unlock()

	return url
}

// Open returns the document behind url.
func (o *MemoryObjects) Open(url string) (domain.Source, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	src, ok := o.objects[url]
	return src, ok
}

// Release drops url. It reports false if url was unknown or already released.
func (o *MemoryObjects) Release(url string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.objects[url]; !ok {
		return false
	}
	delete(o.objects, url)
	o.released++
	return true
}

// Live returns the number of unreleased URLs.
func (o *MemoryObjects) Live() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.objects)
}

// Counts returns how many URLs were created and released.
func (o *MemoryObjects) Counts() (created, released int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.created, o.released
}

