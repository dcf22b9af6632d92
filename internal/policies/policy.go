// Package policies resolves which insurance policy, and therefore which
// insurer, a claim submission belongs to.
package policies

import (
	"time"

	"github.com/google/uuid"
)

// Status of a policy.
type Status string

const (
	StatusActive    Status = "Active"
	StatusExpired   Status = "Expired"
	StatusCancelled Status = "Cancelled"
	StatusPending   Status = "Pending"
)

// Policy is the read-only view the claim pipeline needs.
type Policy struct {
	ID                uuid.UUID  `json:"id"`
	PolicyNumber      string     `json:"policyNumber"`
	FarmerID          uuid.UUID  `json:"farmerId"`
	ServiceProviderID *uuid.UUID `json:"serviceProviderId,omitempty"`
	Status            Status     `json:"status"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           time.Time  `json:"endDate"`
	SumInsured        float64    `json:"sumInsured"`
	CropType          *string    `json:"cropType,omitempty"`
	AreaHectares      *float64   `json:"areaHectares,omitempty"`
}

// Covers reports whether day falls inside the policy period, both ends inclusive.
func (p Policy) Covers(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(truncateDay(p.StartDate)) && !d.After(truncateDay(p.EndDate))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
