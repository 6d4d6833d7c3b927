package xpath

import (
	"strconv"
	"strings"
)

const separator = "-"

// ChunkKey returns the storage key of the chunk at index for the given upload hash.
func ChunkKey(hash string, index int) string {
	return ChunkPrefix(hash) + strconv.Itoa(index)
}

// CheckpointKey returns the key probed to know whether an upload has been started.
func CheckpointKey(hash string) string {
	return ChunkKey(hash, 0)
}

// ChunkPrefix returns the prefix shared by all the chunk keys of hash.
func ChunkPrefix(hash string) string {
	return hash + separator
}

// ParseChunkKey extracts the chunk index from key when key belongs to hash.
func ParseChunkKey(hash, key string) (int, bool) {
	prefix := ChunkPrefix(hash)
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}

	suffix := strings.TrimPrefix(key, prefix)
	if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
		return 0, false
	}

	index, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return index, true
}

// Name reports whether p is usable as a flat storage name, p is kept as is.
// Separators, traversal segments and hidden names are rejected.
func Name(p string) (string, bool) {
	switch {
	case p == "":
		return "", false
	case strings.HasPrefix(p, "."):
		return "", false
	case strings.ContainsAny(p, "/\\\x00"):
		return "", false
	}
	return p, true
}
