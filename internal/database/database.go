package database

import (
	"time"

	"github.com/mdouchement/resumable/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool

		SessionInteraction
		ChunkInteraction
	}

	// A SessionInteraction defines all the methods used to interact with a session record.
	SessionInteraction interface {
		FindSession(hash string) (*model.Session, error)
		// FindStaleSessions returns the unmerged sessions not updated since the given date.
		FindStaleSessions(before time.Time) ([]*model.Session, error)
		DeleteSession(hash string) error
	}

	// A ChunkInteraction defines all the methods used to interact with a chunk record.
	ChunkInteraction interface {
		// FindChunksByHash returns the chunks of hash ordered by index.
		FindChunksByHash(hash string) ([]*model.Chunk, error)
		DeleteChunksByHash(hash string) error
	}
)
