package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	ListByUser(userID int) ([]*model.Campaign, error)
	GetByID(id int) (*model.Campaign, error)
	Create(c *model.Campaign) error
	UpdateStatus(campaignID int, status model.CampaignStatus) error
	MarkStarted(campaignID int) error
	Delete(campaignID int) error

	// Live state
	ActiveByUser(userID int) (*model.Campaign, error)
	DueScheduled(now time.Time) ([]*model.Campaign, error)
	ApplySendResult(campaignID int, success bool) (*model.Campaign, error)

	// Stats
	StatsBetween(userID int, from, to time.Time) ([]model.StatsPoint, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, status, message_template, source_file,
	recipients_total, success_count, failure_count, scheduled_at, started_at, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	c := &model.Campaign{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.MessageTemplate, &c.SourceFile,
		&c.RecipientsTotal, &c.SuccessCount, &c.FailureCount, &c.ScheduledAt, &c.StartedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusPending
	}
	query := `
        INSERT INTO campaigns (user_id, name, status, message_template, source_file,
                               recipients_total, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.UserID, c.Name, c.Status, c.MessageTemplate, c.SourceFile,
		c.RecipientsTotal, c.ScheduledAt, c.CreatedAt).Scan(&c.ID)
}

// ListByUser returns the user's campaigns in creation order. The
// dashboard keeps this order as-is, so it must be stable.
func (r *CampaignRepository) ListByUser(userID int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id=$1 ORDER BY id`
	rows, err := r.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, status, campaignID)
	return err
}

func (r *CampaignRepository) MarkStarted(campaignID int) error {
	query := `UPDATE campaigns SET status=$1, started_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, model.StatusSending, campaignID)
	return err
}

func (r *CampaignRepository) Delete(campaignID int) error {
	res, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, campaignID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

// ====================== Live state ======================

// ActiveByUser returns the newest campaign still in flight, or nil.
func (r *CampaignRepository) ActiveByUser(userID int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns WHERE user_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1`
	c, err := scanCampaign(r.DB.QueryRow(query, userID, model.StatusSending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) DueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2`
	rows, err := r.DB.Query(query, model.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ApplySendResult bumps one counter and returns the fresh row, so the
// caller can publish progress without a second query.
func (r *CampaignRepository) ApplySendResult(campaignID int, success bool) (*model.Campaign, error) {
	column := "failure_count"
	if success {
		column = "success_count"
	}
	query := `UPDATE campaigns SET ` + column + `=` + column + `+1 WHERE id=$1 RETURNING ` + campaignColumns
	c, err := scanCampaign(r.DB.QueryRow(query, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCampaignNotFound(campaignID)
		}
		return nil, err
	}
	return c, nil
}

// ====================== Stats ======================

// StatsBetween aggregates per-day sent/failed recipient counts for
// campaigns of one user inside [from, to).
func (r *CampaignRepository) StatsBetween(userID int, from, to time.Time) ([]model.StatsPoint, error) {
	query := `
        SELECT to_char(rcp.updated_at, 'YYYY-MM-DD') AS day,
               COUNT(*) FILTER (WHERE rcp.status = 'sent')   AS sent,
               COUNT(*) FILTER (WHERE rcp.status = 'failed') AS failed
        FROM recipients rcp
        JOIN campaigns cmp ON cmp.id = rcp.campaign_id
        WHERE cmp.user_id = $1
          AND rcp.status IN ('sent', 'failed')
          AND rcp.updated_at >= $2 AND rcp.updated_at < $3
        GROUP BY day
        ORDER BY day
    `
	rows, err := r.DB.Query(query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []model.StatsPoint{}
	for rows.Next() {
		var p model.StatsPoint
		if err := rows.Scan(&p.Date, &p.SentCount, &p.FailedCount); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
