package model

type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
	SourceTypeText SourceType = "text"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeURL, SourceTypeFile, SourceTypeText:
		return true
	}
	return false
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	SourceType       SourceType       `json:"source_type"`
	URL              string           `json:"url"`
	FileName         string           `json:"file"`
	FileKey          string           `json:"file_key"`
	TextContent      string           `json:"-"`
	Processed        bool             `json:"processed"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ErrorMessage     string           `json:"error_message"`
	ChunksCount      int              `json:"chunks_count"`
	Ctime            int64            `json:"created_at"`
	Mtime            int64            `json:"updated_at"`
}
