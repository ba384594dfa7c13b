package repository

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/store"
)

type CampaignRepository struct {
	DB *sql.DB
}

// EnsureSchema creates the campaigns table if it does not exist yet.
func (r *CampaignRepository) EnsureSchema() error {
	query := `
        CREATE TABLE IF NOT EXISTS campaigns (
            id                  TEXT PRIMARY KEY,
            service             TEXT NOT NULL DEFAULT '',
            link                TEXT NOT NULL DEFAULT '',
            destination         TEXT NOT NULL DEFAULT '',
            proxy               TEXT NOT NULL DEFAULT '',
            otp_type            TEXT NOT NULL DEFAULT '',
            daily_amount        TEXT NOT NULL DEFAULT '',
            source_list_label   TEXT,
            source_list_history TEXT[] NOT NULL DEFAULT '{}',
            processed           BIGINT NOT NULL DEFAULT 0,
            status              TEXT NOT NULL,
            remote_job_id       TEXT,
            created_at          TIMESTAMPTZ NOT NULL,
            archived_at         TIMESTAMPTZ
        )
    `
	_, err := r.DB.Exec(query)
	return err
}

// SaveCampaign upserts the full record. Called by the store on every
// mutation, so it must be a single statement.
func (r *CampaignRepository) SaveCampaign(c *model.Campaign) error {
	query := `
        INSERT INTO campaigns (
            id, service, link, destination, proxy, otp_type, daily_amount,
            source_list_label, source_list_history, processed, status,
            remote_job_id, created_at, archived_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (id) DO UPDATE SET
            service = EXCLUDED.service,
            link = EXCLUDED.link,
            destination = EXCLUDED.destination,
            proxy = EXCLUDED.proxy,
            otp_type = EXCLUDED.otp_type,
            daily_amount = EXCLUDED.daily_amount,
            source_list_label = EXCLUDED.source_list_label,
            source_list_history = EXCLUDED.source_list_history,
            processed = EXCLUDED.processed,
            status = EXCLUDED.status,
            remote_job_id = EXCLUDED.remote_job_id,
            archived_at = EXCLUDED.archived_at
    `
	_, err := r.DB.Exec(query,
		c.ID, c.Service, c.Link, c.Destination, c.Proxy, c.OTPType, c.DailyAmount,
		c.SourceListLabel, pq.Array(c.SourceListHistory), c.Processed, string(c.Status),
		c.RemoteJobID, c.CreatedAt, c.ArchivedAt,
	)
	return err
}

func (r *CampaignRepository) DeleteCampaign(id string) error {
	_, err := r.DB.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	return err
}

// LoadCampaigns reads everything back, split into active and archived.
func (r *CampaignRepository) LoadCampaigns() (active, archived []*model.Campaign, err error) {
	query := `
        SELECT id, service, link, destination, proxy, otp_type, daily_amount,
               source_list_label, source_list_history, processed, status,
               remote_job_id, created_at, archived_at
        FROM campaigns ORDER BY created_at DESC
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		var status string
		if err := rows.Scan(
			&c.ID, &c.Service, &c.Link, &c.Destination, &c.Proxy, &c.OTPType, &c.DailyAmount,
			&c.SourceListLabel, pq.Array(&c.SourceListHistory), &c.Processed, &status,
			&c.RemoteJobID, &c.CreatedAt, &c.ArchivedAt,
		); err != nil {
			return nil, nil, err
		}
		c.Status = model.Status(status)
		if c.Status == model.StatusArchived {
			archived = append(archived, c)
		} else {
			active = append(active, c)
		}
	}
	return active, archived, rows.Err()
}

var _ store.Persister = (*CampaignRepository)(nil)
