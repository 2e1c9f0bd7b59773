package domain

import (
	"encoding/json"
	"time"
)

type ParseStatus string

const (
	ParseNone    ParseStatus = "none"
	ParseRunning ParseStatus = "parsing"
	ParseDone    ParseStatus = "parsed"
	ParseFailed  ParseStatus = "parse_failed"
)

// Upload is a stored file attachment. Resume uploads additionally go
// through an async parse whose result is patched in by a resume_parsed
// event rather than a refetch.
type Upload struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	FileName    string          `json:"fileName"`
	FileURL     string          `json:"fileUrl"`
	ContentType string          `json:"contentType,omitempty"`
	IsResume    bool            `json:"isResume"`
	ParseStatus ParseStatus     `json:"parseStatus"`
	ParsedData  json.RawMessage `json:"parsedData,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
