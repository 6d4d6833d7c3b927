package upload

import (
	"context"

	"github.com/mdouchement/resumable/internal/database"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/xpath"
	"github.com/pkg/errors"
)

// A SessionDestroyer removes the chunks and the records of an upload session.
// The assembled file, if any, is kept even when its name looks like a chunk key of the session.
type SessionDestroyer struct {
	database database.Client
	storage  storage.Backend
	hash     string
}

// NewSessionDestroyer returns a new SessionDestroyer.
func NewSessionDestroyer(database database.Client, storage storage.Backend, hash string) *SessionDestroyer {
	return &SessionDestroyer{
		database: database,
		storage:  storage,
		hash:     hash,
	}
}

// Destroy performs the removal.
func (s *SessionDestroyer) Destroy(ctx context.Context) error {
	var assembled string
	session, err := s.database.FindSession(s.hash)
	switch {
	case err == nil:
		assembled = session.FileName
	case !s.database.IsNotFound(err):
		return errors.Wrap(err, "SessionDestroyer session")
	}

	keys, err := s.storage.Keys(ctx, xpath.ChunkPrefix(s.hash))
	if err != nil {
		return errors.Wrap(err, "SessionDestroyer list")
	}

	for _, key := range keys {
		if _, ok := xpath.ParseChunkKey(s.hash, key); !ok || key == assembled {
			continue
		}

		if err = s.storage.Remove(ctx, key); err != nil {
			return errors.Wrap(err, "SessionDestroyer storage")
		}
	}

	//

	err = s.database.DeleteChunksByHash(s.hash)
	if err != nil {
		return errors.Wrap(err, "SessionDestroyer chunks")
	}

	err = s.database.DeleteSession(s.hash)
	return errors.Wrap(err, "SessionDestroyer session")
}
