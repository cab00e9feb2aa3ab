package agreement

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle position of a record. Values are ordered: a status
// only ever advances, never regresses.
type Status int

const (
	StatusScheduled Status = iota
	StatusCompleted
	StatusDisputed
	StatusResolved
)

var statusNames = map[Status]string{
	StatusScheduled: "Scheduled",
	StatusCompleted: "Completed",
	StatusDisputed:  "Disputed",
	StatusResolved:  "Resolved",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// Status marshals as its name so descriptors and API responses stay readable
// without a lookup table on the consumer side.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record is the persisted form of one agreement. Draft fields are immutable
// for the record's lifetime; only Status and PaymentRecorded ever change.
type Record struct {
	Draft
	TokenID         uint64    `json:"tokenId"`
	Owner           string    `json:"owner"`
	Status          Status    `json:"status"`
	PaymentRecorded bool      `json:"paymentRecorded"`
	FinalizedFrom   uint64    `json:"finalizedFrom,omitempty"` // venue token this artist token attests to, 0 if none
	CreatedAt       time.Time `json:"createdAt"`
}
