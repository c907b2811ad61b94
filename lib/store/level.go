package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"
)

// Key prefixes inside the LevelDB keyspace. Artifact bodies and their
// metadata live side by side so a prefix scan over "m:" enumerates the
// store without touching the (possibly large) bodies.
const (
	levelEntryPrefix = "e:"
	levelMetaPrefix  = "m:"
)

type levelMeta struct {
	Size      int   `msgpack:"s"`
	UpdatedAt int64 `msgpack:"u"`
}

// Level is a Store backed by a LevelDB database. It suits the mutable tier
// of long-running servers, where incremental generation and revalidation
// keep rewriting a large number of small artifacts.
type Level struct {
	db *leveldb.DB
}

// OpenLevel opens (or creates) a LevelDB database at path.
func OpenLevel(path string) (*Level, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb %s: %w", path, err)
	}
	return &Level{db: db}, nil
}

// Close releases the database.
func (l *Level) Close() error {
	return l.db.Close()
}

func (l *Level) Read(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := l.db.Get([]byte(levelEntryPrefix+name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("store: read %s: %w", name, err)
	}
	return string(b), nil
}

func (l *Level) Write(ctx context.Context, name, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := msgpack.Marshal(levelMeta{Size: len(content), UpdatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(levelEntryPrefix+name), []byte(content))
	batch.Put([]byte(levelMetaPrefix+name), meta)
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	return nil
}

func (l *Level) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(levelEntryPrefix + name))
	batch.Delete([]byte(levelMetaPrefix + name))
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: delete %s: %w", name, err)
	}
	return nil
}

// List returns artifact names under prefix in key order, which LevelDB
// keeps sorted.
func (l *Level) List(ctx context.Context, prefix string) ([]string, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte(levelMetaPrefix+prefix)), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, string(it.Key()[len(levelMetaPrefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("store: list %q: %w", prefix, err)
	}
	return out, nil
}

// UpdatedAt returns when name was last written.
func (l *Level) UpdatedAt(name string) (time.Time, error) {
	b, err := l.db.Get([]byte(levelMetaPrefix+name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: stat %s: %w", name, err)
	}
	var meta levelMeta
	if err := msgpack.Unmarshal(b, &meta); err != nil {
		return time.Time{}, fmt.Errorf("store: stat %s: %w", name, err)
	}
	return time.Unix(meta.UpdatedAt, 0), nil
}
