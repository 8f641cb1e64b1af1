package models

import (
	"time"

	id "habitat/pkg/domain"
)

// MediaType classifies a stored media file.
type MediaType string

const (
	MediaPhoto    MediaType = "photo"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// Media is a file attached to an inspection, optionally to one item.
type Media struct {
	ID           id.MediaID
	InspectionID id.InspectionID
	ItemID       *id.ItemID
	StoragePath  string
	MediaType    MediaType
	Section      *string
	TakenAt      time.Time
	CreatedAt    time.Time
}

// IsPhoto reports whether the media is rendered as a photo.
func (m Media) IsPhoto() bool {
	return m.MediaType == MediaPhoto
}
