package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/xpath"
	"github.com/pkg/errors"
)

type (
	// A Merger assembles the chunks of an upload into a single file.
	Merger struct {
		logger  logger.Logger
		storage storage.Backend
		staging *storage.Staging
		verify  bool
	}

	// A Merged is the outcome of a successful merge.
	Merged struct {
		Size     int64
		Checksum string
		// Leftovers are the chunk keys that could not be removed after the merge.
		Leftovers []string
	}
)

// NewMerger returns a new Merger.
// When verify is true, the MD5 of the assembled file must match the upload hash.
func NewMerger(log logger.Logger, storage storage.Backend, staging *storage.Staging, verify bool) *Merger {
	return &Merger{
		logger:  log.WithPrefix("[merger]"),
		storage: storage,
		staging: staging,
		verify:  verify,
	}
}

// Merge concatenates the chunks 0..total-1 of hash, in ascending order, into fileName.
// The output is assembled in the staging area and only promoted once every chunk has been read,
// so a failed merge never leaves a partial fileName. Chunks are removed after the promotion.
func (m *Merger) Merge(ctx context.Context, hash, fileName string, total int) (*Merged, error) {
	tmp := m.staging.Name()
	defer m.staging.Remove(tmp) // no-op once promoted

	h := md5.New()
	merged := &Merged{}

	for i := 0; i < total; i++ {
		n, err := m.append(ctx, tmp, xpath.ChunkKey(hash, i), h)
		if err != nil {
			return nil, &MergeError{Index: i, Err: err}
		}
		merged.Size += n
	}

	merged.Checksum = hex.EncodeToString(h.Sum(nil))
	if m.verify && !strings.EqualFold(merged.Checksum, hash) {
		return nil, &MergeError{
			Index: -1,
			Err:   errors.Wrapf(ErrChecksumMismatch, "got %s", merged.Checksum),
		}
	}

	if err := m.storage.Promote(ctx, m.staging.Path(tmp), fileName); err != nil {
		return nil, &MergeError{Index: -1, Err: err}
	}

	for i := 0; i < total; i++ {
		key := xpath.ChunkKey(hash, i)
		if err := m.storage.Remove(ctx, key); err != nil {
			m.logger.Errorf("could not remove merged chunk: %s", err)
			merged.Leftovers = append(merged.Leftovers, key)
		}
	}

	return merged, nil
}

func (m *Merger) append(ctx context.Context, tmp, key string, h io.Writer) (int64, error) {
	r, err := m.storage.Reader(ctx, key)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return m.staging.Append(tmp, io.TeeReader(r, h))
}
