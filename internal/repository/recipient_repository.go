package repository

import (
	"database/sql"

	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

type RecipientRepositoryInterface interface {
	BulkInsert(campaignID int, recipients []model.Recipient) error
	PendingIDs(campaignID int) ([]int, error)
	GetByID(id int) (*model.Recipient, error)
	UpdateStatus(id int, status, lastError string) error
}

type RecipientRepository struct {
	DB *sql.DB
}

func (r *RecipientRepository) BulkInsert(campaignID int, recipients []model.Recipient) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT INTO recipients (campaign_id, phone, name, status, created_at, updated_at)
        VALUES ($1, $2, $3, 'pending', NOW(), NOW())
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rcp := range recipients {
		if _, err := stmt.Exec(campaignID, rcp.Phone, rcp.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *RecipientRepository) PendingIDs(campaignID int) ([]int, error) {
	rows, err := r.DB.Query(
		`SELECT id FROM recipients WHERE campaign_id=$1 AND status='pending' ORDER BY id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT id, campaign_id, phone, name, status, last_error, created_at, updated_at
              FROM recipients WHERE id=$1`
	rcp := &model.Recipient{}
	err := r.DB.QueryRow(query, id).Scan(
		&rcp.ID, &rcp.CampaignID, &rcp.Phone, &rcp.Name,
		&rcp.Status, &rcp.LastError, &rcp.CreatedAt, &rcp.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rcp, nil
}

func (r *RecipientRepository) UpdateStatus(id int, status, lastError string) error {
	query := `UPDATE recipients SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, status, lastError, id)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
