package projects

import (
	"time"

	"github.com/google/uuid"
)

// Status is the verification state of a plantation project
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// GPSCoord is a WGS84 position
type GPSCoord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Project represents a submitted mangrove/plantation restoration record
type Project struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           string     `json:"owner_id"`
	Species           string     `json:"species"`
	AreaHectares      float64    `json:"area_hectares"`
	GPS               GPSCoord   `json:"gps"`
	ImageRef          string     `json:"image_ref"`
	Status            Status     `json:"status"`
	VerificationScore *float64   `json:"verification_score,omitempty"`
	CO2Tons           *float64   `json:"co2_tons,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	DecidedBy         string     `json:"decided_by,omitempty"`
}

// IsDecided reports whether the project reached a terminal status
func (p *Project) IsDecided() bool {
	return p.Status == StatusVerified || p.Status == StatusRejected
}

// Clone returns a deep copy so callers never share pointer fields with a store
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	if p.VerificationScore != nil {
		v := *p.VerificationScore
		c.VerificationScore = &v
	}
	if p.CO2Tons != nil {
		v := *p.CO2Tons
		c.CO2Tons = &v
	}
	if p.DecidedAt != nil {
		v := *p.DecidedAt
		c.DecidedAt = &v
	}
	return &c
}

// SubmitRequest carries the fields a project owner supplies
type SubmitRequest struct {
	Species      string   `json:"species" binding:"required"`
	AreaHectares float64  `json:"area_hectares"`
	GPS          GPSCoord `json:"gps"`
	ImageRef     string   `json:"image_ref"`
}

// ProjectFilter narrows List results; zero values match everything
type ProjectFilter struct {
	OwnerID string
	Status  Status
	Limit   int
}

// Decision is the terminal state written by a compare-and-set transition
type Decision struct {
	Status    Status
	Score     *float64
	CO2Tons   *float64
	DecidedAt time.Time
	DecidedBy string
}
