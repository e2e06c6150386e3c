package profile

import (
	"time"

	"github.com/google/uuid"
)

// KYCBasic is the tier every signup starts at
const KYCBasic = "basic"

// Profile holds a borrower's identity details
type Profile struct {
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	City       string    `db:"city" json:"city"`
	Occupation string    `db:"occupation" json:"occupation"`
	Gender     string    `db:"gender" json:"gender,omitempty"`
	KYCLevel   string    `db:"kyc_level" json:"kyc_level"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Bucket is one group of a demographic breakdown
type Bucket struct {
	Value string `db:"value" json:"value"`
	Count int    `db:"count" json:"count"`
}

// Demographics breaks borrowers down by self-reported attributes
type Demographics struct {
	Gender     []Bucket `json:"gender"`
	Occupation []Bucket `json:"occupation"`
	City       []Bucket `json:"city"`
}
