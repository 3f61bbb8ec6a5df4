// Package serializer defines the Serializer boundary the handler registry
// and HTTP binding layer use to move payload/result bytes in and out of Go
// values (spec.md §6), implemented with goccy/go-json rather than the
// standard library encoder.
package serializer

import goccyjson "github.com/goccy/go-json"

// Serializer encodes/decodes the opaque payload and result byte slices
// carried on a job.Job.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default Serializer, backed by goccy/go-json — a drop-in,
// faster encoding/json replacement already pulled transitively through
// gin-gonic/gin.
type JSON struct{}

// New returns the default JSON serializer.
func New() JSON { return JSON{} }

func (JSON) Marshal(v any) ([]byte, error) { return goccyjson.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return goccyjson.Unmarshal(data, v) }
