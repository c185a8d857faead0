package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping is used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ---- MonitorRegistry ----

const monitorColumns = `id, team_id, name, url, kind, method, interval_sec, timeout_sec,
       enabled, check_ssl, keyword, expected_status_code, headers, body, severity,
       created_at, last_checked_at, last_verdict, last_response_ms, uptime_percent, status`

func (s *Store) Add(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}
	headers := m.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors
		   (id, team_id, name, url, kind, method, interval_sec, timeout_sec, enabled, check_ssl,
		    keyword, expected_status_code, headers, body, severity, created_at, status)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		string(m.ID), m.TeamID, m.Name, m.URL, string(m.Kind), m.Method, m.IntervalSec, m.TimeoutSec,
		m.Enabled, m.CheckSSL, m.Keyword, m.ExpectedStatusCode, headers, m.Body, string(m.Severity),
		m.CreatedAt, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Monitor, error) {
	return s.queryMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at, id`)
}

// ---- MonitorStore ----

func (s *Store) ListEnabled(ctx context.Context) ([]domain.Monitor, error) {
	return s.queryMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE enabled ORDER BY created_at, id`)
}

func (s *Store) FindByID(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, string(id))
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find monitor %s: %w", id, err)
	}
	return &m, nil
}

func (s *Store) UpdateRuntime(ctx context.Context, id domain.MonitorID, f domain.RuntimeFields) error {
	var checkedAt *time.Time
	if !f.LastCheckedAt.IsZero() {
		checkedAt = &f.LastCheckedAt
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors
		    SET last_checked_at = $2, last_verdict = $3, last_response_ms = $4,
		        uptime_percent = $5, status = $6
		  WHERE id = $1`,
		string(id), checkedAt, string(f.LastVerdict), f.LastResponseMS, f.UptimePercent, string(f.Status),
	)
	if err != nil {
		return fmt.Errorf("update runtime %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) queryMonitors(ctx context.Context, sql string, args ...any) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Monitor, 0)
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(r scanner) (domain.Monitor, error) {
	var (
		m                                  domain.Monitor
		id, kind, severity, verdict, state string
	)
	err := r.Scan(
		&id, &m.TeamID, &m.Name, &m.URL, &kind, &m.Method, &m.IntervalSec, &m.TimeoutSec,
		&m.Enabled, &m.CheckSSL, &m.Keyword, &m.ExpectedStatusCode, &m.Headers, &m.Body, &severity,
		&m.CreatedAt, &m.LastCheckedAt, &verdict, &m.LastResponseMS, &m.UptimePercent, &state,
	)
	if err != nil {
		return domain.Monitor{}, err
	}
	m.ID = domain.MonitorID(id)
	m.Kind = domain.ProbeKind(kind)
	m.Severity = domain.Severity(severity)
	m.LastVerdict = domain.Verdict(verdict)
	m.Status = domain.MonitorStatus(state)
	return m, nil
}

// ---- CheckStore ----

func (s *Store) Append(ctx context.Context, c *domain.Check) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checks
		   (id, monitor_id, checked_at, outcome, status_code, response_time_ms, error,
		    ssl_valid, ssl_expires_at, keyword_found, verdict)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, string(c.MonitorID), c.CheckedAt, string(c.Outcome), c.StatusCode, c.ResponseTimeMS, c.Error,
		c.SSLValid, c.SSLExpiresAt, c.KeywordFound, string(c.Verdict),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) Uptime(ctx context.Context, id domain.MonitorID, since time.Time) (float64, error) {
	var up, total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE verdict = 'up'), count(*)
		   FROM checks
		  WHERE monitor_id = $1 AND checked_at >= $2 AND outcome <> 'skipped'`,
		string(id), since,
	).Scan(&up, &total)
	if err != nil {
		return 0, fmt.Errorf("uptime %s: %w", id, err)
	}
	return repo.UptimePercent(up, total), nil
}

func (s *Store) ListByMonitor(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Check, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_id, checked_at, outcome, status_code, response_time_ms, error,
		        ssl_valid, ssl_expires_at, keyword_found, verdict
		   FROM checks
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`,
		string(id), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Check, 0)
	for rows.Next() {
		var (
			c                           domain.Check
			monitorID, outcome, verdict string
		)
		if err := rows.Scan(&c.ID, &monitorID, &c.CheckedAt, &outcome, &c.StatusCode, &c.ResponseTimeMS,
			&c.Error, &c.SSLValid, &c.SSLExpiresAt, &c.KeywordFound, &verdict); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		c.MonitorID = domain.MonitorID(monitorID)
		c.Outcome = domain.CheckOutcome(outcome)
		c.Verdict = domain.Verdict(verdict)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- IncidentStore ----

const incidentColumns = `id, monitor_id, title, description, status, severity, started_at, resolved_at, duration_ms`

func (s *Store) FindOpenForMonitor(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = $1 AND status <> 'resolved'`,
		string(id))
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	return &inc, nil
}

// Create relies on the partial unique index to reject a second open incident.
func (s *Store) Create(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (`+incidentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.ID, string(inc.MonitorID), inc.Title, inc.Description, string(inc.Status), string(inc.Severity),
		inc.StartedAt, inc.ResolvedAt, inc.Duration.Milliseconds(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repo.ErrIncidentOpen
	}
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, incidentID string, resolvedAt time.Time) (*domain.Incident, error) {
	var out domain.Incident
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inc, err := scanIncident(tx.QueryRow(ctx,
			`SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, incidentID))
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !inc.Open() {
			out = inc
			return nil
		}

		d := resolvedAt.Sub(inc.StartedAt)
		if d < 0 {
			d = 0
		}
		if _, err := tx.Exec(ctx,
			`UPDATE incidents SET status = $2, resolved_at = $3, duration_ms = $4 WHERE id = $1`,
			incidentID, string(domain.IncidentResolved), resolvedAt, d.Milliseconds(),
		); err != nil {
			return err
		}
		inc.Status = domain.IncidentResolved
		inc.ResolvedAt = &resolvedAt
		inc.Duration = d
		out = inc
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("resolve incident %s: %w", incidentID, err)
	}
	return &out, nil
}

func (s *Store) ListOpen(ctx context.Context) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE status <> 'resolved' ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanIncident(r scanner) (domain.Incident, error) {
	var (
		inc                         domain.Incident
		monitorID, status, severity string
		durationMS                  int64
	)
	if err := r.Scan(&inc.ID, &monitorID, &inc.Title, &inc.Description, &status, &severity,
		&inc.StartedAt, &inc.ResolvedAt, &durationMS); err != nil {
		return domain.Incident{}, err
	}
	inc.MonitorID = domain.MonitorID(monitorID)
	inc.Status = domain.IncidentStatus(status)
	inc.Severity = domain.Severity(severity)
	inc.Duration = time.Duration(durationMS) * time.Millisecond
	return inc, nil
}
