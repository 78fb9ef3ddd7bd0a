package models

type AttachmentKind string

const (
	ImageAttachment    AttachmentKind = "image"
	VideoAttachment    AttachmentKind = "video"
	LinkAttachment     AttachmentKind = "link"
	DocumentAttachment AttachmentKind = "document"
)

// Attachment is the metadata of a file sent alongside a message. The file
// itself lives wherever URL points to.
type Attachment struct {
	Filename string         `json:"filename"`
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url"`
}
