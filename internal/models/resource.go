package models

import "time"

// ResourceQueueState is the per-resource admission state: the ticket
// counters and the capacity policy used for wait estimation.
type ResourceQueueState struct {
	ResourceID         string        `json:"resource_id"`
	IsAdmissionOpen    bool          `json:"is_admission_open"`
	LastAssignedTicket int64         `json:"last_assigned_ticket"`
	LastCalledTicket   int64         `json:"last_called_ticket"`
	CapacityUnit       int           `json:"capacity_unit"`
	TurnoverDuration   time.Duration `json:"turnover_duration"`
	MinPartySize       int           `json:"min_party_size"`
	MaxPartySize       int           `json:"max_party_size"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// EstimateWait computes the expected wait for a zero-based rank:
// ceil(rank / capacityUnit) * turnoverDuration. Rank 0 waits zero.
func (r *ResourceQueueState) EstimateWait(rank int64) time.Duration {
	if rank <= 0 || r.CapacityUnit <= 0 {
		return 0
	}
	turns := (rank + int64(r.CapacityUnit) - 1) / int64(r.CapacityUnit)
	return time.Duration(turns) * r.TurnoverDuration
}

func (r *ResourceQueueState) ValidatePartySize(size int) bool {
	return size >= r.MinPartySize && size <= r.MaxPartySize
}
