package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/database"
	"github.com/mdouchement/resumable/internal/model"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/xpath"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

type (
	// A Service exposes the chunked upload operations.
	Service struct {
		logger       logger.Logger
		db           database.Client
		storage      storage.Backend
		staging      *storage.Staging
		merger       *Merger
		locks        *locker
		maxChunkSize int64
	}

	// Options are the Service's dependencies and settings.
	Options struct {
		Logger   logger.Logger
		Database database.Client
		Storage  storage.Backend
		Staging  *storage.Staging
		// MaxChunkSize is the maximum size in bytes of a chunk, 0 means unlimited.
		MaxChunkSize int64
		// VerifyChecksum requires the MD5 of the assembled file to match the upload hash.
		VerifyChecksum bool
	}

	// A Status describes what is already stored for an upload hash.
	Status struct {
		// IsUploaded is true when the first chunk is present.
		// It says nothing about the other chunks, use Uploaded to know what remains.
		IsUploaded bool
		Uploaded   []int
		Merged     bool
	}
)

// NewService returns a new Service.
func NewService(o Options) *Service {
	return &Service{
		logger:       o.Logger.WithPrefix("[upload]"),
		db:           o.Database,
		storage:      o.Storage,
		staging:      o.Staging,
		merger:       NewMerger(o.Logger, o.Storage, o.Staging, o.VerifyChecksum),
		locks:        newLocker(),
		maxChunkSize: o.MaxChunkSize,
	}
}

// CheckUploaded probes whether the upload of hash has been started.
// An unknown or malformed hash is reported as not uploaded.
func (s *Service) CheckUploaded(ctx context.Context, hash string) (*Status, error) {
	status := &Status{
		Uploaded: []int{},
	}

	hash, ok := xpath.Name(hash)
	if !ok {
		return status, nil
	}

	exist, err := s.storage.Exist(ctx, xpath.CheckpointKey(hash))
	if err != nil {
		return nil, err
	}
	status.IsUploaded = exist

	//

	chunks, err := s.db.FindChunksByHash(hash)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		status.Uploaded = append(status.Uploaded, chunk.Index)
	}

	session, err := s.db.FindSession(hash)
	if err != nil && !s.db.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		status.Merged = session.Merged()
	}

	return status, nil
}

// ReceiveChunk stores the content of r as the chunk index of hash.
// Sending the same index again replaces the previous chunk.
func (s *Service) ReceiveChunk(ctx context.Context, hash string, index int, r io.Reader) (*model.Chunk, error) {
	hash, ok := xpath.Name(hash)
	if !ok {
		return nil, invalid("fileHash %q", hash)
	}
	if index < 0 {
		return nil, invalid("chunkIndex %d", index)
	}

	unlock, err := s.locks.TryRLock(hash)
	if err != nil {
		return nil, errors.Wrap(err, "merge in progress")
	}
	defer unlock()

	//

	h := xxh3.New()
	src := io.TeeReader(r, h)
	if s.maxChunkSize > 0 {
		src = io.LimitReader(src, s.maxChunkSize+1)
	}

	tmp, n, err := s.staging.Write(src)
	if err != nil {
		return nil, err
	}

	if s.maxChunkSize > 0 && n > s.maxChunkSize {
		s.staging.Remove(tmp)
		return nil, errors.Wrapf(ErrTooLarge, "maximum is %s", units.BytesSize(float64(s.maxChunkSize)))
	}

	key := xpath.ChunkKey(hash, index)
	if err = s.storage.Promote(ctx, s.staging.Path(tmp), key); err != nil {
		s.staging.Remove(tmp)
		return nil, err
	}

	//

	chunk := &model.Chunk{
		Hash:     hash,
		Index:    index,
		Size:     n,
		Checksum: fmt.Sprintf("%016x", h.Sum64()),
	}
	chunk.ID = key

	if err = s.track(chunk); err != nil {
		return nil, err
	}

	s.logger.Debugf("received %s (%s)", key, units.HumanSize(float64(n)))
	return chunk, nil
}

// MergeChunks assembles the chunks 0..total-1 of hash into fileName.
// Only one merge per hash can run at a time and it cannot overlap chunk uploads of that hash.
func (s *Service) MergeChunks(ctx context.Context, hash, fileName string, total int) (*model.Session, error) {
	hash, ok := xpath.Name(hash)
	if !ok {
		return nil, invalid("fileHash %q", hash)
	}
	fileName, ok = xpath.Name(fileName)
	if !ok {
		return nil, invalid("fileName %q", fileName)
	}
	if total < 1 {
		return nil, invalid("total %d", total)
	}
	if index, ok := xpath.ParseChunkKey(hash, fileName); ok && index < total {
		return nil, invalid("fileName %q is one of the merged chunks", fileName)
	}

	unlock, err := s.locks.TryLock(hash)
	if err != nil {
		return nil, errors.Wrap(err, "merge or upload in progress")
	}
	defer unlock()

	//

	merged, err := s.merger.Merge(ctx, hash, fileName, total)
	if err != nil {
		s.logger.Errorf("could not merge %s into %s: %s", hash, fileName, err)
		return nil, err
	}

	if len(merged.Leftovers) > 0 {
		s.logger.Infof("%d chunk(s) of %s left in storage", len(merged.Leftovers), hash)
	}

	//

	session, err := s.session(hash)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session.FileName = fileName
	session.Total = total
	session.Size = merged.Size
	session.Checksum = merged.Checksum
	session.MergedAt = &now

	// The file is already in place, the manifest is only informative from now on.
	if err = s.db.Save(session); err != nil {
		s.logger.Errorf("could not save merged session %s: %s", hash, err)
	}

	if err = s.db.DeleteChunksByHash(hash); err != nil {
		s.logger.Errorf("could not delete chunk records of %s: %s", hash, err)
	}

	s.logger.Infof("merged %d chunk(s) of %s into %s (%s)", total, hash, fileName, units.HumanSize(float64(merged.Size)))
	return session, nil
}

// Session returns the manifest of hash.
func (s *Service) Session(_ context.Context, hash string) (*model.Session, []*model.Chunk, error) {
	hash, ok := xpath.Name(hash)
	if !ok {
		return nil, nil, invalid("fileHash %q", hash)
	}

	session, err := s.db.FindSession(hash)
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, nil, errors.Wrapf(storage.ErrNotFound, "session %s", hash)
		}
		return nil, nil, err
	}

	chunks, err := s.db.FindChunksByHash(hash)
	return session, chunks, err
}

// Abort discards the chunks and the manifest of hash.
func (s *Service) Abort(ctx context.Context, hash string) error {
	hash, ok := xpath.Name(hash)
	if !ok {
		return invalid("fileHash %q", hash)
	}

	unlock, err := s.locks.TryLock(hash)
	if err != nil {
		return errors.Wrap(err, "merge or upload in progress")
	}
	defer unlock()

	return NewSessionDestroyer(s.db, s.storage, hash).Destroy(ctx)
}

// Purge aborts the unmerged sessions idle for longer than olderThan.
// Busy sessions are skipped.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	sessions, err := s.db.FindStaleSessions(time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	var count int
	var first error
	for _, session := range sessions {
		err = s.Abort(ctx, session.Hash)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			s.logger.Errorf("could not purge %s: %s", session.Hash, err)
			if first == nil {
				first = err
			}
			continue
		}

		s.logger.Infof("purged stale session %s", session.Hash)
		count++
	}

	return count, first
}

func (s *Service) track(chunk *model.Chunk) error {
	session, err := s.session(chunk.Hash)
	if err != nil {
		return err
	}

	// A new upload for an already merged hash starts over.
	session.MergedAt = nil
	if err = s.db.Save(session); err != nil {
		return errors.Wrap(err, "could not save session")
	}

	return errors.Wrap(s.db.Save(chunk), "could not save chunk")
}

func (s *Service) session(hash string) (*model.Session, error) {
	session, err := s.db.FindSession(hash)
	if err == nil {
		return session, nil
	}
	if !s.db.IsNotFound(err) {
		return nil, err
	}

	session = &model.Session{Hash: hash}
	session.ID = hash
	return session, nil
}
