// Package wire defines the JSON exchanged between the relay and its
// clients.
package wire

import (
	"net/url"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
)

// Doc is the body of create and update requests.
type Doc struct {
	Fields fields.Map `json:"fields"`
}

// QueryRequest is the body of a query request.
type QueryRequest struct {
	Filter query.Filter `json:"filter"`
}

// Documents is a query response and a live-query frame.
type Documents struct {
	Documents []fields.Map `json:"documents"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

// FilterParam carries a JSON-encoded query.Filter on listen requests.
const FilterParam = "filter"

func DocPath(collection, id string) string {
	return "/v1/docs/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func QueryPath(collection string) string {
	return "/v1/query/" + url.PathEscape(collection)
}

func ListenPath(collection string) string {
	return "/v1/listen/" + url.PathEscape(collection)
}

func BlobPath(bucket, key string) string {
	return "/v1/blobs/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

// HealthPath answers 200 without authentication.
const HealthPath = "/health"
