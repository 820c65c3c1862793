package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/aml-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable write-behind layer for investigation records.
// The engine runs fully in-memory; each mutation is mirrored here so records
// survive a restart and remain queryable for regulatory retention.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for AML Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("AML Engine schema initialized")
	return nil
}

// SaveAlert upserts the full alert document plus the indexed columns used
// by retention queries.
func (s *PostgresStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s: %v", alert.Number, err)
	}

	sql := `
		INSERT INTO alerts (id, number, status, severity, customer_id, risk_score, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			severity = EXCLUDED.severity,
			risk_score = EXCLUDED.risk_score,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = s.pool.Exec(ctx, sql,
		alert.ID, alert.Number, string(alert.Status), string(alert.Severity),
		alert.CustomerID, alert.RiskScore, payload, alert.CreatedAt, alert.UpdatedAt)
	return err
}

// SaveCase upserts an investigation case document.
func (s *PostgresStore) SaveCase(ctx context.Context, kase *models.Case) error {
	payload, err := json.Marshal(kase)
	if err != nil {
		return fmt.Errorf("failed to marshal case %s: %v", kase.Number, err)
	}

	sql := `
		INSERT INTO cases (id, number, status, priority, customer_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = s.pool.Exec(ctx, sql,
		kase.ID, kase.Number, string(kase.Status), string(kase.Priority),
		kase.CustomerID, payload, kase.CreatedAt, kase.UpdatedAt)
	return err
}

// SaveSAR upserts a suspicious activity report document.
func (s *PostgresStore) SaveSAR(ctx context.Context, sar *models.SAR) error {
	payload, err := json.Marshal(sar)
	if err != nil {
		return fmt.Errorf("failed to marshal SAR %s: %v", sar.Number, err)
	}

	sql := `
		INSERT INTO sars (id, number, status, sar_type, filing_deadline, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at;
	`
	_, err = s.pool.Exec(ctx, sql,
		sar.ID, sar.Number, string(sar.Status), string(sar.Type),
		sar.FilingDeadline, payload, sar.CreatedAt, sar.UpdatedAt)
	return err
}

// SaveScreeningResult stores a completed sanctions/watchlist screen. Results
// are append-only: one row per screen, never updated.
func (s *PostgresStore) SaveScreeningResult(ctx context.Context, result *models.ScreeningResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal screening result %s: %v", result.ID, err)
	}

	sql := `
		INSERT INTO screening_results (id, subject_id, subject_name, status, best_score, match_count, payload, screened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql,
		result.ID, result.SubjectID, result.SubjectName, string(result.Status),
		result.BestScore(), len(result.Matches), payload, result.ScreenedAt)
	return err
}

// SaveRiskAssessment stores one customer risk assessment. Like screening
// results these form an append-only history.
func (s *PostgresStore) SaveRiskAssessment(ctx context.Context, assessment *models.RiskAssessment) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal risk assessment %s: %v", assessment.ID, err)
	}

	sql := `
		INSERT INTO risk_assessments (id, customer_id, trigger_type, overall_score, risk_level, payload, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql,
		assessment.ID, assessment.CustomerID, assessment.Trigger,
		assessment.OverallScore, string(assessment.Level), payload, assessment.AssessedAt)
	return err
}

// CountAlertsByStatus returns how many persisted alerts sit in each status.
// Used by the health endpoint to expose retention-store depth.
func (s *PostgresStore) CountAlertsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
