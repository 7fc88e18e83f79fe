package entity

import (
	"io"
	"strings"
)

// Attachment is the persisted reference to an uploaded object.
type Attachment struct {
	FileName string `json:"file_name" firestore:"fileName"`
	FileURL  string `json:"file_url" firestore:"fileUrl"`
	FileType string `json:"file_type" firestore:"fileType"`
	FileSize int64  `json:"file_size" firestore:"fileSize"`
	Path     string `json:"path" firestore:"path"`
}

// AttachmentFile is an upload input. ContentType may be empty, in which case
// the uploader sniffs it from the content.
type AttachmentFile struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// MessageTypeForMIME maps a MIME type to the message type it produces.
func MessageTypeForMIME(mimeType string) MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageImage
	case strings.HasPrefix(mimeType, "video/"):
		return MessageVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return MessageAudio
	}
	return MessageFile
}
