package models

import "time"

// Document is a file attached to an application. On approval ownership is
// re-pointed to the newly created student account; exactly one of
// ApplicationID and OwnerID is set afterwards.
type Document struct {
	ID            int64     `db:"id" json:"id"`
	ApplicationID *int64    `db:"application_id" json:"application_id,omitempty"`
	OwnerID       *int64    `db:"owner_id" json:"owner_id,omitempty"`
	FileName      string    `db:"file_name" json:"file_name"`
	ContentType   string    `db:"content_type" json:"content_type"`
	StoragePath   string    `db:"storage_path" json:"-"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploaded_at"`
}
