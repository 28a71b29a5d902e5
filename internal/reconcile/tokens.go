package reconcile

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// writeToken identifies one write or delete the store performed. A file
// notification is ours when the file still holds exactly the bytes the
// latest token for its path recorded, or is still absent after our delete.
type writeToken struct {
	id      uuid.UUID
	digest  uint64
	deleted bool
}

type tokenSet struct {
	mu     sync.Mutex
	byPath map[string]writeToken
}

func newTokenSet() *tokenSet {
	return &tokenSet{byPath: make(map[string]writeToken)}
}

func (t *tokenSet) wrote(path string, data []byte) uuid.UUID {
	tok := writeToken{id: uuid.New(), digest: xxhash.Sum64(data)}
	t.mu.Lock()
	t.byPath[path] = tok
	t.mu.Unlock()
	return tok.id
}

func (t *tokenSet) deleted(path string) uuid.UUID {
	tok := writeToken{id: uuid.New(), deleted: true}
	t.mu.Lock()
	t.byPath[path] = tok
	t.mu.Unlock()
	return tok.id
}

// match reports the token accounting for the current state of path. data
// is the file content, or nil with exists false when the file is gone.
func (t *tokenSet) match(path string, data []byte, exists bool) (uuid.UUID, bool) {
	t.mu.Lock()
	tok, ok := t.byPath[path]
	t.mu.Unlock()
	switch {
	case !ok:
		return uuid.Nil, false
	case !exists:
		return tok.id, tok.deleted
	default:
		return tok.id, !tok.deleted && tok.digest == xxhash.Sum64(data)
	}
}
