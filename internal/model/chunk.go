package model

// A Chunk records a chunk blob present in the storage.
// Its ID is the chunk storage key so re-uploads update the same record.
type Chunk struct {
	Base `json:",inline" storm:"inline"`

	Hash     string `json:"hash"     storm:"index"`
	Index    int    `json:"index"    storm:"index"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}
