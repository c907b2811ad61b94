// Package store provides the storage tiers hxrender writes build and
// request-time artifacts to.
//
// Two tiers exist at runtime: an immutable store holding write-once build
// output, and a mutable store holding artifacts that revalidation and
// incremental generation may overwrite. Both satisfy the same Store
// interface; which implementation backs which tier is a deployment choice.
//
// Writes are whole-value overwrites. No store offers multi-key
// transactions, since every artifact write is independently idempotent.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no artifact exists under the name.
// Callers reading optional artifacts treat it as "absent"; every other error
// is an I/O failure.
var ErrNotFound = errors.New("store: artifact not found")

// Store is a keyed string store for rendered artifacts.
//
// Names are slash-separated relative paths such as
// "static/en-post%2Fhello.html". Implementations create any intermediate
// structure a name needs on Write.
type Store interface {
	Read(ctx context.Context, name string) (string, error)
	Write(ctx context.Context, name, content string) error
	Delete(ctx context.Context, name string) error
	// List returns the names under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ReadOptional reads name and maps ErrNotFound to ok == false.
func ReadOptional(ctx context.Context, s Store, name string) (content string, ok bool, err error) {
	content, err = s.Read(ctx, name)
	if IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

var (
	_ Store = (*FS)(nil)
	_ Store = (*Memory)(nil)
	_ Store = (*Level)(nil)
)
