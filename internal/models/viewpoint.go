package models

import (
	"time"

	"github.com/google/uuid"
)

// ViewpointStatus tracks a viewpoint through its lifecycle. Transitions are
// applied atomically by the repository; DELETED is terminal.
type ViewpointStatus string

const (
	StatusRequested   ViewpointStatus = "REQUESTED"
	StatusDownloading ViewpointStatus = "DOWNLOADING"
	StatusReady       ViewpointStatus = "READY"
	StatusFailed      ViewpointStatus = "FAILED"
	StatusDeleted     ViewpointStatus = "DELETED"
)

// RangeAdjustment selects the per-band stretch applied before encoding.
type RangeAdjustment string

const (
	// RangeNone passes sample values through untouched.
	RangeNone RangeAdjustment = "NONE"
	// RangeMinMax maps the band's observed [min, max] onto the output depth.
	RangeMinMax RangeAdjustment = "MINMAX"
	// RangeDRA maps the 2nd..98th percentile onto the output depth.
	RangeDRA RangeAdjustment = "DRA"
)

// ValidRangeAdjustment reports whether s names a known stretch policy.
func ValidRangeAdjustment(s string) bool {
	switch RangeAdjustment(s) {
	case RangeNone, RangeMinMax, RangeDRA:
		return true
	}
	return false
}

// Viewpoint is the authoritative record of one registered source image.
type Viewpoint struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"viewpoint_id"`
	Name            string          `json:"viewpoint_name"`
	BucketName      string          `json:"bucket_name"`
	ObjectKey       string          `json:"object_key"`
	TileSize        int             `json:"tile_size"`
	RangeAdjustment RangeAdjustment `json:"range_adjustment"`
	Status          ViewpointStatus `gorm:"index" json:"viewpoint_status"`
	LocalPath       string          `json:"local_object_path,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Terminal reports whether no further lifecycle work applies.
func (v *Viewpoint) Terminal() bool {
	return v.Status == StatusDeleted
}

// ViewpointSummary is the listing shape returned by GET /viewpoints.
type ViewpointSummary struct {
	ID     uuid.UUID       `json:"viewpoint_id"`
	Name   string          `json:"viewpoint_name"`
	Status ViewpointStatus `json:"viewpoint_status"`
}

// Summary reduces a viewpoint to its listing shape.
func (v *Viewpoint) Summary() ViewpointSummary {
	return ViewpointSummary{ID: v.ID, Name: v.Name, Status: v.Status}
}

// CreateViewpointRequest is the POST /viewpoints payload.
type CreateViewpointRequest struct {
	BucketName      string `json:"bucket_name" validate:"required,min=1"`
	ObjectKey       string `json:"object_key" validate:"required,min=1"`
	ViewpointName   string `json:"viewpoint_name" validate:"required,min=1"`
	TileSize        int    `json:"tile_size" validate:"required,gt=0,lte=4096"`
	RangeAdjustment string `json:"range_adjustment" validate:"required,oneof=NONE MINMAX DRA"`
}
