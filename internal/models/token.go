package models

import "time"

// AdmissionToken is a time-boxed credential granting its owner the right to
// complete one scarce transaction at a resource. At most one non-expired,
// unconsumed token exists per (owner, resource); the engine enforces this by
// checking expiry at use, not by trusting storage TTLs alone.
type AdmissionToken struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	ResourceID string    `json:"resource_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	IssuedAt   time.Time `json:"issued_at"`
}

func (t *AdmissionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
