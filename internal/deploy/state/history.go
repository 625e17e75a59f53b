package state

import (
	"context"
	"database/sql"
	"time"
)

// DeployRecord summarizes one pipeline run, successful or not.
type DeployRecord struct {
	ID              int64     `json:"id" yaml:"id"`
	DeployID        string    `json:"deployId,omitempty" yaml:"deployId,omitempty"`
	SiteID          string    `json:"siteId" yaml:"siteId"`
	Root            string    `json:"root" yaml:"root"`
	Draft           bool      `json:"draft" yaml:"draft"`
	Files           int       `json:"files" yaml:"files"`
	DistinctDigests int       `json:"distinctDigests" yaml:"distinctDigests"`
	Required        int       `json:"required" yaml:"required"`
	Uploaded        int       `json:"uploaded" yaml:"uploaded"`
	State           string    `json:"state" yaml:"state"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt       time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt" yaml:"finishedAt"`
}

func (d *DB) InsertDeploy(ctx context.Context, rec DeployRecord) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
INSERT INTO deploys (deploy_id, site_id, root, draft, files, distinct_digests,
	required, uploaded, state, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(rec.DeployID),
		rec.SiteID,
		rec.Root,
		boolToInt(rec.Draft),
		rec.Files,
		rec.DistinctDigests,
		rec.Required,
		rec.Uploaded,
		rec.State,
		nullString(rec.Error),
		rec.StartedAt.UnixMilli(),
		rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDeploys returns the most recent records first. limit <= 0 means all.
func (d *DB) ListDeploys(ctx context.Context, limit int) ([]DeployRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
SELECT id, deploy_id, site_id, root, draft, files, distinct_digests,
	required, uploaded, state, error, started_at, finished_at
FROM deploys ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeployRecord
	for rows.Next() {
		rec, err := scanDeploy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDeploy(scanner interface{ Scan(dest ...any) error }) (DeployRecord, error) {
	var (
		rec               DeployRecord
		deployID, errMsg  sql.NullString
		draft             int
		started, finished int64
	)
	if err := scanner.Scan(&rec.ID, &deployID, &rec.SiteID, &rec.Root, &draft, &rec.Files,
		&rec.DistinctDigests, &rec.Required, &rec.Uploaded, &rec.State, &errMsg, &started, &finished); err != nil {
		return DeployRecord{}, err
	}
	rec.DeployID = deployID.String
	rec.Error = errMsg.String
	rec.Draft = draft != 0
	rec.StartedAt = time.UnixMilli(started)
	rec.FinishedAt = time.UnixMilli(finished)
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
