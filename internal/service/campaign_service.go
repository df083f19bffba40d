package service

import (
	"io"
	"log"
	"time"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/events"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
	"github.com/unclebandit/smsleopard-dashboard/internal/queue"
	"github.com/unclebandit/smsleopard-dashboard/internal/repository"
	"github.com/unclebandit/smsleopard-dashboard/internal/sheet"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	Queue         queue.Queue
	Events        events.Publisher
}

// CreateCampaign validates the upload, parses the recipient sheet and
// stores the campaign with its recipients. A scheduledAt value parks
// the campaign as scheduled instead of pending.
func (s *CampaignService) CreateCampaign(userID int, name, messageTemplate string, scheduledAt *string, fileName string, file io.Reader) (*model.Campaign, error) {
	campaign := &model.Campaign{
		UserID:          userID,
		Name:            name,
		MessageTemplate: messageTemplate,
		SourceFile:      fileName,
		Status:          model.StatusPending,
	}
	if err := campaign.Validate(); err != nil {
		return nil, apperrors.NewValidation("%s", err.Error())
	}

	if scheduledAt != nil && *scheduledAt != "" {
		t, err := time.Parse(time.RFC3339, *scheduledAt)
		if err != nil {
			return nil, apperrors.NewValidation("malformed schedule date: %s", *scheduledAt)
		}
		campaign.ScheduledAt = &t
		campaign.Status = model.StatusScheduled
	}

	entries, err := sheet.Parse(file, VariableMode(messageTemplate))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.NewValidation("no valid recipients found in the spreadsheet")
	}
	campaign.RecipientsTotal = len(entries)

	if err := s.CampaignRepo.Create(campaign); err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, len(entries))
	for i, e := range entries {
		recipients[i] = model.Recipient{CampaignID: campaign.ID, Phone: e.Phone, Name: e.Name}
	}
	if err := s.RecipientRepo.BulkInsert(campaign.ID, recipients); err != nil {
		return nil, err
	}

	log.Printf("✅ Campaign %d created with %d recipients\n", campaign.ID, campaign.RecipientsTotal)
	return campaign, nil
}

// StartCampaign enqueues one send job per pending recipient and moves
// the campaign to sending.
func (s *CampaignService) StartCampaign(userID, campaignID int) error {
	campaign, err := s.ownedCampaign(userID, campaignID)
	if err != nil {
		return err
	}
	return s.start(campaign)
}

func (s *CampaignService) start(campaign *model.Campaign) error {
	if campaign.Status != model.StatusPending && campaign.Status != model.StatusScheduled {
		return apperrors.NewValidation("campaign cannot be started in status: %s", campaign.Status)
	}

	ids, err := s.RecipientRepo.PendingIDs(campaign.ID)
	if err != nil {
		return err
	}

	if err := s.CampaignRepo.MarkStarted(campaign.ID); err != nil {
		return err
	}
	campaign.Status = model.StatusSending

	queued := 0
	for _, id := range ids {
		if err := s.Queue.Publish(queue.TopicSendJobs, id); err != nil {
			log.Println("⚠️ failed to enqueue recipient", id, ":", err)
			continue
		}
		queued++
	}

	if s.Events != nil {
		if err := s.Events.CampaignStatus(campaign.UserID, campaign.ID, model.StatusSending); err != nil {
			log.Println("⚠️ failed to publish status update:", err)
		}
		if err := s.Events.ActiveCampaign(campaign.UserID, campaign); err != nil {
			log.Println("⚠️ failed to publish active campaign:", err)
		}
	}

	log.Printf("✅ Campaign %d started, %d message(s) queued\n", campaign.ID, queued)
	return nil
}

// StartDueScheduled promotes every scheduled campaign whose trigger
// time has passed. Called from the server's scheduler loop.
func (s *CampaignService) StartDueScheduled(now time.Time) {
	due, err := s.CampaignRepo.DueScheduled(now)
	if err != nil {
		log.Println("⚠️ scheduled campaign scan failed:", err)
		return
	}
	for _, campaign := range due {
		if err := s.start(campaign); err != nil {
			log.Printf("⚠️ failed to start scheduled campaign %d: %v\n", campaign.ID, err)
		}
	}
}

func (s *CampaignService) DeleteCampaign(userID, campaignID int) error {
	if _, err := s.ownedCampaign(userID, campaignID); err != nil {
		return err
	}
	return s.CampaignRepo.Delete(campaignID)
}

func (s *CampaignService) ListCampaigns(userID int) ([]model.Campaign, error) {
	ptrs, err := s.CampaignRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}
	return campaigns, nil
}

func (s *CampaignService) ActiveCampaign(userID int) (*model.Campaign, error) {
	return s.CampaignRepo.ActiveByUser(userID)
}

// Stats aggregates per-day send counts for the period containing the
// reference date.
func (s *CampaignService) Stats(userID int, period, referenceDate string) (*model.StatsResponse, error) {
	ref, err := time.Parse("2006-01-02", referenceDate)
	if err != nil {
		return nil, apperrors.NewValidation("malformed reference date: %s", referenceDate)
	}
	from, to, err := periodWindow(period, ref)
	if err != nil {
		return nil, err
	}

	points, err := s.CampaignRepo.StatsBetween(userID, from, to)
	if err != nil {
		return nil, err
	}
	return &model.StatsResponse{
		Period:        period,
		ReferenceDate: referenceDate,
		Stats:         points,
	}, nil
}

// periodWindow returns the [from, to) range for a stats period. Weeks
// start on Monday.
func periodWindow(period string, ref time.Time) (time.Time, time.Time, error) {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	switch period {
	case "day":
		return day, day.AddDate(0, 0, 1), nil
	case "week":
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday closes the week
		}
		start := day.AddDate(0, 0, 1-weekday)
		return start, start.AddDate(0, 0, 7), nil
	case "month":
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, apperrors.NewValidation("invalid period: %s", period)
	}
}

func (s *CampaignService) ownedCampaign(userID, campaignID int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		// Do not leak other users' campaigns.
		return nil, apperrors.NewCampaignNotFound(campaignID)
	}
	return campaign, nil
}
