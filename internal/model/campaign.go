package model

import (
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign lifecycle states
type CampaignStatus string

const (
	StatusScheduled CampaignStatus = "scheduled"
	StatusPending   CampaignStatus = "pending"
	StatusSending   CampaignStatus = "sending"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

// IsTerminal reports whether no further progress events are expected.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusPending, StatusSending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	UserID          int            `db:"user_id" json:"-"`
	Name            string         `db:"name" json:"name"`
	Status          CampaignStatus `db:"status" json:"status"`
	MessageTemplate string         `db:"message_template" json:"message_template"`
	SourceFile      string         `db:"source_file" json:"source_file"`
	RecipientsTotal int            `db:"recipients_total" json:"recipients_total"`
	SuccessCount    int            `db:"success_count" json:"success_count"`
	FailureCount    int            `db:"failure_count" json:"failure_count"`
	ScheduledAt     *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Processed returns success+failure clamped to the total. The clamp is
// display-only; stored counters are never corrected.
func (c *Campaign) Processed() int {
	processed := c.SuccessCount + c.FailureCount
	if c.RecipientsTotal > 0 && processed > c.RecipientsTotal {
		return c.RecipientsTotal
	}
	return processed
}

// Validate checks required fields before a campaign is accepted
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.MessageTemplate == "" {
		return fmt.Errorf("message template is required")
	}
	return nil
}
