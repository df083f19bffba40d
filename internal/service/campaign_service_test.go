package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// ====================== Fakes ======================

type fakeCampaignRepo struct {
	campaigns map[int]*model.Campaign
	created   []*model.Campaign
	statuses  map[int]model.CampaignStatus
	started   []int
	deleted   []int
	due       []*model.Campaign
	points    []model.StatsPoint
	statsFrom time.Time
	statsTo   time.Time
}

func newFakeCampaignRepo(campaigns ...*model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{
		campaigns: make(map[int]*model.Campaign),
		statuses:  make(map[int]model.CampaignStatus),
	}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) ListByUser(userID int) ([]*model.Campaign, error) {
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	c.ID = 42 + len(r.created)
	r.created = append(r.created, c)
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	r.statuses[campaignID] = status
	if c, ok := r.campaigns[campaignID]; ok {
		c.Status = status
	}
	return nil
}

func (r *fakeCampaignRepo) MarkStarted(campaignID int) error {
	r.started = append(r.started, campaignID)
	if c, ok := r.campaigns[campaignID]; ok {
		c.Status = model.StatusSending
	}
	return nil
}

func (r *fakeCampaignRepo) Delete(campaignID int) error {
	r.deleted = append(r.deleted, campaignID)
	delete(r.campaigns, campaignID)
	return nil
}

func (r *fakeCampaignRepo) ActiveByUser(userID int) (*model.Campaign, error) {
	for _, c := range r.campaigns {
		if c.UserID == userID && c.Status == model.StatusSending {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) DueScheduled(time.Time) ([]*model.Campaign, error) {
	return r.due, nil
}

func (r *fakeCampaignRepo) ApplySendResult(campaignID int, success bool) (*model.Campaign, error) {
	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil, apperrors.NewCampaignNotFound(campaignID)
	}
	if success {
		c.SuccessCount++
	} else {
		c.FailureCount++
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) StatsBetween(userID int, from, to time.Time) ([]model.StatsPoint, error) {
	r.statsFrom, r.statsTo = from, to
	return r.points, nil
}

type fakeRecipientRepo struct {
	recipients map[int]*model.Recipient
	inserted   []model.Recipient
	pending    []int
	updates    map[int]string
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{
		recipients: make(map[int]*model.Recipient),
		updates:    make(map[int]string),
	}
}

func (r *fakeRecipientRepo) BulkInsert(campaignID int, recipients []model.Recipient) error {
	r.inserted = append(r.inserted, recipients...)
	return nil
}

func (r *fakeRecipientRepo) PendingIDs(int) ([]int, error) { return r.pending, nil }

func (r *fakeRecipientRepo) GetByID(id int) (*model.Recipient, error) {
	return r.recipients[id], nil
}

func (r *fakeRecipientRepo) UpdateStatus(id int, status, lastError string) error {
	r.updates[id] = status
	return nil
}

type fakeQueue struct {
	published []any
}

func (q *fakeQueue) Publish(topic string, payload any) error {
	q.published = append(q.published, payload)
	return nil
}

func (q *fakeQueue) Subscribe(string, func(any) error) error { return nil }

type fakePublisher struct {
	progress []model.CampaignProgress
	statuses []model.CampaignStatus
	actives  []*model.Campaign
}

func (p *fakePublisher) CampaignProgress(userID int, ev model.CampaignProgress) error {
	p.progress = append(p.progress, ev)
	return nil
}

func (p *fakePublisher) CampaignStatus(userID, campaignID int, status model.CampaignStatus) error {
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *fakePublisher) ActiveCampaign(userID int, c *model.Campaign) error {
	p.actives = append(p.actives, c)
	return nil
}

func (p *fakePublisher) DeviceStatus(int, model.DeviceStatus) error { return nil }

// ====================== Helpers ======================

func sheetWith(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"telefone", "nome"}))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func newService(repo *fakeCampaignRepo) (*CampaignService, *fakeRecipientRepo, *fakeQueue, *fakePublisher) {
	recipients := newFakeRecipientRepo()
	q := &fakeQueue{}
	pub := &fakePublisher{}
	return &CampaignService{
		CampaignRepo:  repo,
		RecipientRepo: recipients,
		Queue:         q,
		Events:        pub,
	}, recipients, q, pub
}

// ====================== Create ======================

func TestCreateCampaignStoresRecipients(t *testing.T) {
	svc, recipients, _, _ := newService(newFakeCampaignRepo())
	buf := sheetWith(t,
		[]any{"258841000001", "Alice"},
		[]any{"258841000002", "Bruno"},
	)

	c, err := svc.CreateCampaign(7, "promo", "Ola {nome}", nil, "recipients.xlsx", buf)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, c.Status)
	assert.Equal(t, 2, c.RecipientsTotal)
	require.Len(t, recipients.inserted, 2)
	assert.Equal(t, "Alice", recipients.inserted[0].Name)
	assert.Equal(t, c.ID, recipients.inserted[0].CampaignID)
}

func TestCreateCampaignRequiresName(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())

	_, err := svc.CreateCampaign(7, "", "Ola", nil, "recipients.xlsx", sheetWith(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateCampaignMalformedScheduleDate(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())
	bad := "tomorrow at nine"

	_, err := svc.CreateCampaign(7, "promo", "Ola", &bad, "recipients.xlsx", sheetWith(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "malformed schedule date")
}

func TestCreateCampaignScheduledParksInsteadOfPending(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())
	when := "2026-09-01T09:00:00Z"

	c, err := svc.CreateCampaign(7, "promo", "Ola", &when, "recipients.xlsx",
		sheetWith(t, []any{"258841000001", "Alice"}))
	require.NoError(t, err)

	assert.Equal(t, model.StatusScheduled, c.Status)
	require.NotNil(t, c.ScheduledAt)
	assert.Equal(t, 2026, c.ScheduledAt.Year())
}

func TestCreateCampaignRejectsEmptySheet(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())

	// rows exist but none carries a usable phone
	_, err := svc.CreateCampaign(7, "promo", "Ola", nil, "recipients.xlsx",
		sheetWith(t, []any{"123", "Alice"}, []any{"", "Bruno"}))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "no valid recipients")
}

// ====================== Start ======================

func TestStartCampaignEnqueuesPendingRecipients(t *testing.T) {
	repo := newFakeCampaignRepo(&model.Campaign{ID: 3, UserID: 7, Status: model.StatusPending})
	svc, recipients, q, pub := newService(repo)
	recipients.pending = []int{11, 12, 13}

	require.NoError(t, svc.StartCampaign(7, 3))

	assert.Equal(t, []int{3}, repo.started)
	assert.Equal(t, []any{11, 12, 13}, q.published)
	assert.Equal(t, []model.CampaignStatus{model.StatusSending}, pub.statuses)
	require.Len(t, pub.actives, 1)
	assert.Equal(t, 3, pub.actives[0].ID)
}

func TestStartCampaignWrongStatus(t *testing.T) {
	repo := newFakeCampaignRepo(&model.Campaign{ID: 3, UserID: 7, Status: model.StatusCompleted})
	svc, _, q, _ := newService(repo)

	err := svc.StartCampaign(7, 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "cannot be started in status: completed")
	assert.Empty(t, q.published)
}

func TestStartCampaignHidesForeignCampaigns(t *testing.T) {
	repo := newFakeCampaignRepo(&model.Campaign{ID: 3, UserID: 8, Status: model.StatusPending})
	svc, _, _, _ := newService(repo)

	err := svc.StartCampaign(7, 3)
	var notFound *apperrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestStartDueScheduledPromotesAll(t *testing.T) {
	repo := newFakeCampaignRepo()
	first := &model.Campaign{ID: 1, UserID: 7, Status: model.StatusScheduled}
	second := &model.Campaign{ID: 2, UserID: 8, Status: model.StatusScheduled}
	repo.campaigns[1], repo.campaigns[2] = first, second
	repo.due = []*model.Campaign{first, second}
	svc, recipients, _, _ := newService(repo)
	recipients.pending = []int{21}

	svc.StartDueScheduled(time.Now())

	assert.ElementsMatch(t, []int{1, 2}, repo.started)
}

// ====================== Delete ======================

func TestDeleteCampaignChecksOwnership(t *testing.T) {
	repo := newFakeCampaignRepo(&model.Campaign{ID: 3, UserID: 8})
	svc, _, _, _ := newService(repo)

	var notFound *apperrors.ErrCampaignNotFound
	assert.ErrorAs(t, svc.DeleteCampaign(7, 3), &notFound)
	assert.Empty(t, repo.deleted)

	repo.campaigns[3].UserID = 7
	require.NoError(t, svc.DeleteCampaign(7, 3))
	assert.Equal(t, []int{3}, repo.deleted)
}

// ====================== Stats ======================

func TestStatsMalformedReferenceDate(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())

	_, err := svc.Stats(7, "day", "24/08/2026")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStatsInvalidPeriod(t *testing.T) {
	svc, _, _, _ := newService(newFakeCampaignRepo())

	_, err := svc.Stats(7, "year", "2026-08-24")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid period: year")
}

func TestStatsQueriesPeriodWindow(t *testing.T) {
	repo := newFakeCampaignRepo()
	repo.points = []model.StatsPoint{{Date: "2026-08-26", SentCount: 5, FailedCount: 1}}
	svc, _, _, _ := newService(repo)

	resp, err := svc.Stats(7, "week", "2026-08-26") // a Wednesday
	require.NoError(t, err)

	assert.Equal(t, "week", resp.Period)
	assert.Equal(t, "2026-08-26", resp.ReferenceDate)
	assert.Equal(t, repo.points, resp.Stats)
	assert.Equal(t, "2026-08-24", repo.statsFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-08-31", repo.statsTo.Format("2006-01-02"))
}

func TestPeriodWindowBoundaries(t *testing.T) {
	ref := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC) // a Sunday

	from, to, err := periodWindow("day", ref)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30", from.Format("2006-01-02"))
	assert.Equal(t, "2026-08-31", to.Format("2006-01-02"))

	// Sunday belongs to the week that started the previous Monday
	from, to, err = periodWindow("week", ref)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-24", from.Format("2006-01-02"))
	assert.Equal(t, "2026-08-31", to.Format("2006-01-02"))

	from, to, err = periodWindow("month", ref)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", from.Format("2006-01-02"))
	assert.Equal(t, "2026-09-01", to.Format("2006-01-02"))
}
