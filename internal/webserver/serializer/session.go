package serializer

import (
	"github.com/mdouchement/resumable/internal/model"
	"github.com/mdouchement/resumable/internal/upload"
)

// Status returns the serialized form of the given upload status.
func Status(status *upload.Status) map[string]interface{} {
	return map[string]interface{}{
		"isUploaded": status.IsUploaded,
		"uploaded":   status.Uploaded,
		"merged":     status.Merged,
	}
}

// Session returns the serialized form of the given session and its chunks.
func Session(session *model.Session, chunks []*model.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"hash":       session.Hash,
		"file_name":  session.FileName,
		"total":      session.Total,
		"bytes":      session.Size,
		"checksum":   session.Checksum,
		"merged":     session.Merged(),
		"merged_at":  session.MergedAt,
		"updated_at": session.UpdatedAt,
		"chunks":     Chunks(chunks),
	}
}

// Chunks returns the serialized form of the given models.
func Chunks(chunks []*model.Chunk) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(chunks))

	for _, chunk := range chunks {
		sl = append(sl, Chunk(chunk))
	}

	return sl
}

// Chunk returns the serialized form of the given model.
func Chunk(chunk *model.Chunk) map[string]interface{} {
	return map[string]interface{}{
		"index":         chunk.Index,
		"bytes":         chunk.Size,
		"hash":          chunk.Checksum,
		"last_modified": chunk.UpdatedAt,
	}
}
