package models

// MetadataRequest asks the gateway to enrich one inbound message.
type MetadataRequest struct {
	RequestID string
	ChatID    string
	MessageID int
	FileID    string
	Entities  []Entity
}

// ChatInfo is chat-level metadata from the Bot API.
type ChatInfo struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Link     string `json:"chat_link,omitempty"`
}

// FileInfo is file-level metadata from the Bot API.
type FileInfo struct {
	FileID       string `json:"file_id"`
	FilePath     string `json:"file_path"`
	FileSize     int64  `json:"file_size"`
	DownloadLink string `json:"file_download_link,omitempty"`
}

// ChatResult holds either chat info or the error that prevented fetching it.
type ChatResult struct {
	Info *ChatInfo `json:"chat,omitempty"`
	Err  string    `json:"chat_error,omitempty"`
}

// FileStatus tags the file slot of Metadata.
type FileStatus int

const (
	FileAbsent FileStatus = iota
	FileOK
	FileFailed
)

// FileTooBig marks files the Bot API refused to serve.
const FileTooBig = "too_big"

// FileResult holds file info, a fetch error, or nothing when no file was requested.
type FileResult struct {
	Status FileStatus `json:"-"`
	Info   *FileInfo  `json:"file,omitempty"`
	Err    string     `json:"file_error,omitempty"`
}

// Metadata is the gateway's answer for one request.
type Metadata struct {
	Request MetadataRequest `json:"request"`
	Chat    ChatResult      `json:"chat_result"`
	File    FileResult      `json:"file_result"`
}

// Enriched reports whether any metadata was fetched.
func (m Metadata) Enriched() bool {
	return m.Chat.Info != nil || m.File.Status == FileOK
}

// Title returns the chat title, or fallback when chat info is missing.
func (m Metadata) Title(fallback string) string {
	if m.Chat.Info != nil && m.Chat.Info.Title != "" {
		return m.Chat.Info.Title
	}
	return fallback
}

// Username returns the chat username, or fallback when chat info is missing.
func (m Metadata) Username(fallback string) string {
	if m.Chat.Info != nil && m.Chat.Info.Username != "" {
		return m.Chat.Info.Username
	}
	return fallback
}
