//go:generate go run go.uber.org/mock/mockgen -source=disk.go -destination=../mocks/mock_persistence.go -package=mocks
package storage

import "context"

// Entry is one key of an atomic batch. Delete removes the key instead of writing Value.
type Entry struct {
	Key    string
	Value  []byte
	Delete bool
}

func Put(key string, value []byte) Entry {
	return Entry{Key: key, Value: value}
}

func Remove(key string) Entry {
	return Entry{Key: key, Delete: true}
}

// Persistence is the durable key/value collaborator behind every collection.
// Write applies all entries or none of them.
type Persistence interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
