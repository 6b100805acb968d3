// pkg/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// Content types of uploaded objects
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

// ObjectStore is a bucket/object blob store
type ObjectStore interface {
	// Exists reports whether an object is present
	Exists(ctx context.Context, bucket, name string) (bool, error)

	// Read returns the object content, or ErrNotFound
	Read(ctx context.Context, bucket, name string) ([]byte, error)

	// Write creates or replaces an object
	Write(ctx context.Context, bucket, name, contentType string, data []byte) error
}

// Object locates a blob
type Object struct {
	Bucket string
	Name   string
}

// URI returns the gs:// form of the location
func (o Object) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

func (o Object) String() string {
	return o.URI()
}

// ParseURI splits a gs://bucket/name location
func ParseURI(uri string) (Object, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return Object{}, fmt.Errorf("invalid object URI %q: missing gs:// scheme", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return Object{}, fmt.Errorf("invalid object URI %q: expected gs://bucket/name", uri)
	}
	return Object{Bucket: bucket, Name: name}, nil
}
