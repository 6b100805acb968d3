// pkg/storage/memory.go
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryObject struct {
	contentType string
	data        []byte
}

// Memory is an in-process ObjectStore
type Memory struct {
	mu      sync.RWMutex
	objects map[Object]memoryObject
	reads   int
	writes  int
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{objects: make(map[Object]memoryObject)}
}

// Exists reports whether an object is present
func (m *Memory) Exists(_ context.Context, bucket, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[Object{Bucket: bucket, Name: name}]
	return ok, nil
}

// Read returns a copy of the stored bytes
func (m *Memory) Read(_ context.Context, bucket, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[Object{Bucket: bucket, Name: name}]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, name, ErrNotFound)
	}
	m.reads++
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// Write stores a copy of data
func (m *Memory) Write(_ context.Context, bucket, name, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[Object{Bucket: bucket, Name: name}] = memoryObject{contentType: contentType, data: buf}
	m.writes++
	return nil
}

// Put stores an object without counting it as a write
func (m *Memory) Put(bucket, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[Object{Bucket: bucket, Name: name}] = memoryObject{contentType: ContentTypeCSV, data: data}
}

// ContentType returns the content type an object was written with
func (m *Memory) ContentType(bucket, name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[Object{Bucket: bucket, Name: name}].contentType
}

// Names lists the objects of a bucket in lexical order
func (m *Memory) Names(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for obj := range m.objects {
		if obj.Bucket == bucket {
			names = append(names, obj.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Counts returns how many reads and writes were served
func (m *Memory) Counts() (reads, writes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads, m.writes
}
