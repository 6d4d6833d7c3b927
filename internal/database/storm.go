package database

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/resumable/internal/model"
	"github.com/pkg/errors"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(json.Codec)

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.Init(&model.Session{}); err != nil {
		return errors.Wrap(err, "could not init session index")
	}

	err = db.Init(&model.Chunk{})
	return errors.Wrap(err, "could not init chunk index")
}

// StormReIndex rebuilds all the indexes of Storm database.
func StormReIndex(database string) error {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	if err := db.ReIndex(&model.Session{}); err != nil {
		return errors.Wrap(err, "could not ReIndex sessions")
	}

	err = db.ReIndex(&model.Chunk{})
	return errors.Wrap(err, "could not ReIndex chunks")
}

// StormOpen opens the Storm database.
func StormOpen(database string) (Client, error) {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return nil, errors.Wrap(err, "could not get database connection")
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Save(m model.Model) error {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
	}
	if m.GetCreatedAt() == nil {
		m.SetCreatedAt(t)
	}

	return errors.Wrap(c.db.Save(m), "could not save the model")
}

func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

func (c *strm) Close() error {
	return c.db.Close()
}

func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

//
// Session
//

func (c *strm) FindSession(hash string) (*model.Session, error) {
	var session model.Session
	err := c.db.One("Hash", hash, &session)
	return &session, errors.Wrap(err, "could not find session")
}

func (c *strm) FindStaleSessions(before time.Time) ([]*model.Session, error) {
	sessions := make([]*model.Session, 0)
	if err := c.db.All(&sessions); err != nil {
		return nil, errors.Wrap(err, "could not get all sessions")
	}

	stales := sessions[:0]
	for _, session := range sessions {
		if session.Merged() || session.UpdatedAt == nil {
			continue
		}

		if session.UpdatedAt.Before(before) {
			stales = append(stales, session)
		}
	}
	return stales, nil
}

func (c *strm) DeleteSession(hash string) error {
	err := c.db.Select(q.Eq("Hash", hash)).Delete(&model.Session{})
	if err == storm.ErrNotFound {
		return nil
	}
	return errors.Wrap(err, "could not delete session")
}

//
// Chunk
//

func (c *strm) FindChunksByHash(hash string) ([]*model.Chunk, error) {
	chunks := make([]*model.Chunk, 0)
	err := c.db.Select(q.Eq("Hash", hash)).OrderBy("Index").Find(&chunks)
	if err == storm.ErrNotFound {
		return chunks, nil
	}
	return chunks, errors.Wrap(err, "could not get chunks by hash")
}

func (c *strm) DeleteChunksByHash(hash string) error {
	err := c.db.Select(q.Eq("Hash", hash)).Delete(&model.Chunk{})
	if err == storm.ErrNotFound {
		return nil
	}
	return errors.Wrap(err, "could not delete chunks")
}
