package model

import "time"

// A Session is the manifest of one upload, identified by the client supplied hash.
// Its ID is the hash itself.
type Session struct {
	Base `json:",inline" storm:"inline"`

	Hash     string     `json:"hash"      storm:"unique"`
	FileName string     `json:"file_name"`
	Total    int        `json:"total"`
	Size     int64      `json:"size"`
	Checksum string     `json:"checksum"`
	MergedAt *time.Time `json:"merged_at"`
}

// Merged returns true when the session's chunks have been assembled.
func (s *Session) Merged() bool {
	return s.MergedAt != nil
}
