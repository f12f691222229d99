package tracker

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type archivePG struct{ pool *pgxpool.Pool }

// NewArchivePG returns a Postgres-backed completion archive.
func NewArchivePG(pool *pgxpool.Pool) CompletionArchive { return &archivePG{pool: pool} }

const recordCols = `id, task_id, patient_id, urgency, tier, waiting_time,
	execution_time, response_time, expected_sla, sla_compliant, completed_at`

func (r *archivePG) Save(ctx context.Context, rec *CompletionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO completion_record (id, task_id, patient_id, urgency, tier,
			waiting_time, execution_time, response_time, expected_sla,
			sla_compliant, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.TaskID, rec.PatientID, rec.Urgency, rec.Tier,
		rec.WaitingTime, rec.ExecutionTime, rec.ResponseTime, rec.ExpectedSLA,
		rec.SLACompliant, rec.CompletedAt)
	return err
}

func (r *archivePG) scanRecord(row pgx.Row) (*CompletionRecord, error) {
	var rec CompletionRecord
	err := row.Scan(&rec.ID, &rec.TaskID, &rec.PatientID, &rec.Urgency, &rec.Tier,
		&rec.WaitingTime, &rec.ExecutionTime, &rec.ResponseTime, &rec.ExpectedSLA,
		&rec.SLACompliant, &rec.CompletedAt)
	return &rec, err
}

func (r *archivePG) List(ctx context.Context, limit, offset int) ([]*CompletionRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM completion_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM completion_record
		ORDER BY completed_at, task_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CompletionRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
