// pkg/api/events.go
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// ContentTypeCloudEvent marks a structured-mode CloudEvent
const ContentTypeCloudEvent = "application/cloudevents+json"

// FinalizedEvent is the storage event type that triggers ingestion
const FinalizedEvent = "google.cloud.storage.object.v1.finalized"

const maxEventBytes = 1 << 20

// ErrInvalidEvent is returned for requests that do not carry a storage event
var ErrInvalidEvent = errors.New("invalid storage event")

// StorageObject is the storage payload of a finalize event
type StorageObject struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        string `json:"size,omitempty"`
}

// StorageEvent is a decoded CloudEvent. Its data is the object that changed.
type StorageEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Source  string        `json:"source"`
	Subject string        `json:"subject,omitempty"`
	Data    StorageObject `json:"data"`
}

// DecodeStorageEvent reads a CloudEvent in binary or structured mode
func DecodeStorageEvent(r *http.Request) (*StorageEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrInvalidEvent, err)
	}

	ev := &StorageEvent{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == ContentTypeCloudEvent {
		if err := render.DecodeJSON(bytes.NewReader(body), ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	} else {
		ev.ID = r.Header.Get("Ce-Id")
		ev.Type = r.Header.Get("Ce-Type")
		ev.Source = r.Header.Get("Ce-Source")
		ev.Subject = r.Header.Get("Ce-Subject")
		if err := render.DecodeJSON(bytes.NewReader(body), &ev.Data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}

	if ev.Data.Bucket == "" || ev.Data.Name == "" {
		return nil, fmt.Errorf("%w: bucket and name are required", ErrInvalidEvent)
	}
	return ev, nil
}

// Finalized reports whether the event announces a newly written object.
// Events without a type are treated as finalize events.
func (e *StorageEvent) Finalized() bool {
	return e.Type == "" || e.Type == FinalizedEvent || strings.HasSuffix(e.Type, ".finalize")
}
