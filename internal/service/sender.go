package service

import (
	"log"
	"math/rand"

	"github.com/unclebandit/smsleopard-dashboard/internal/events"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
	"github.com/unclebandit/smsleopard-dashboard/internal/repository"
)

// Sender processes queued send jobs: render, send, record the result
// and push progress to the owner's dashboard.
type Sender struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Events        events.Publisher
	SendFunc      func(phone, message string) bool
}

func NewSender(campaignRepo repository.CampaignRepositoryInterface, recipientRepo repository.RecipientRepositoryInterface, publisher events.Publisher, sendFunc func(phone, message string) bool) *Sender {
	if sendFunc == nil {
		sendFunc = MockSend
	}
	return &Sender{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		Events:        publisher,
		SendFunc:      sendFunc,
	}
}

// Process handles one recipient id. A returned error triggers a queue
// retry; unknown recipients are dropped without one.
func (s *Sender) Process(recipientID int) error {
	rcp, err := s.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return err
	}
	if rcp == nil {
		log.Println("⚠️ Recipient not found for ID:", recipientID)
		return nil // no retry
	}

	campaign, err := s.CampaignRepo.GetByID(rcp.CampaignID)
	if err != nil {
		return err
	}

	rendered := RenderMessage(campaign.MessageTemplate, rcp)
	sent := s.SendFunc(rcp.Phone, rendered)

	if sent {
		err = s.RecipientRepo.UpdateStatus(recipientID, "sent", "")
	} else {
		err = s.RecipientRepo.UpdateStatus(recipientID, "failed", "send failed")
	}
	if err != nil {
		return err
	}

	updated, err := s.CampaignRepo.ApplySendResult(campaign.ID, sent)
	if err != nil {
		return err
	}

	if s.Events != nil {
		progress := model.CampaignProgress{
			CampaignID:      updated.ID,
			SuccessCount:    updated.SuccessCount,
			FailureCount:    updated.FailureCount,
			TotalRecipients: updated.RecipientsTotal,
		}
		if err := s.Events.CampaignProgress(updated.UserID, progress); err != nil {
			log.Println("⚠️ failed to publish progress:", err)
		}
	}

	if updated.SuccessCount+updated.FailureCount >= updated.RecipientsTotal {
		return s.finish(updated)
	}
	return nil
}

// finish closes out a fully processed campaign and clears it as the
// active one.
func (s *Sender) finish(campaign *model.Campaign) error {
	status := model.StatusCompleted
	if campaign.SuccessCount == 0 && campaign.FailureCount > 0 {
		status = model.StatusFailed
	}
	if err := s.CampaignRepo.UpdateStatus(campaign.ID, status); err != nil {
		return err
	}

	if s.Events != nil {
		if err := s.Events.CampaignStatus(campaign.UserID, campaign.ID, status); err != nil {
			log.Println("⚠️ failed to publish final status:", err)
		}
		if err := s.Events.ActiveCampaign(campaign.UserID, nil); err != nil {
			log.Println("⚠️ failed to clear active campaign:", err)
		}
	}

	log.Printf("✅ Campaign %d finished as %s (%d sent, %d failed)\n",
		campaign.ID, status, campaign.SuccessCount, campaign.FailureCount)
	return nil
}

// MockSend simulates delivery with a 90% success rate.
func MockSend(phone, message string) bool {
	return rand.Float64() < 0.9
}
