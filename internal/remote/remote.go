// Package remote declares the document store and blob store the sync
// engine talks to.
package remote

import (
	"context"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/query"
)

// Store is a remote document store organized in collections. Documents are
// keyed by their objectId field.
type Store interface {
	// Create writes a new document, replacing any document with the same id.
	Create(ctx context.Context, collection, id string, doc fields.Map) error
	// Update merges doc into an existing document. A missing document yields
	// syncerr.ErrNotFound.
	Update(ctx context.Context, collection, id string, doc fields.Map) error
	Query(ctx context.Context, collection string, f query.Filter) ([]fields.Map, error)
	// Subscribe delivers the matching documents as an initial batch, then
	// every matching document as it is written. Batches for one
	// subscription never overlap.
	Subscribe(ctx context.Context, collection string, f query.Filter, onBatch func([]fields.Map)) (Subscription, error)
}

// Subscription is a live query handle.
type Subscription interface {
	Close() error
}

// Blobs stores media payloads by bucket and key.
type Blobs interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	// Get downloads the blob to destPath.
	Get(ctx context.Context, bucket, key, destPath string) error
}

// Bucket names.
const (
	BucketMedia = "media"
	BucketUser  = "user"
)
