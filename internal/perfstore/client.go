// Package perfstore is the typed client for the relational store of
// per-strain, per-age performance metrics.
package perfstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
	"github.com/plumeline/plumeline/models"
)

// Querier is the subset of pgxpool.Pool the client needs; tests swap it out
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Client executes parameterized lookups against the performance tables
type Client struct {
	pool    Querier
	timeout time.Duration
	log     *zap.Logger
}

// New connects a client from the perfstore config
func New(ctx context.Context, cfg config.PerfStoreConfig, log *zap.Logger) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid perfstore DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
	}

	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{pool: pool, timeout: timeout, log: log}, nil
}

// NewWithQuerier wires an explicit querier, mainly for tests
func NewWithQuerier(q Querier, log *zap.Logger) *Client {
	return &Client{pool: q, timeout: 10 * time.Second, log: log}
}

// Lookup runs a performance query. Missing optional fields widen the match;
// zero rows is ErrPerfStoreEmpty, transport trouble is ErrPerfStoreBackend.
func (c *Client) Lookup(ctx context.Context, q models.PerfQuery) (*models.PerfResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sql, args := BuildQuery(q)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
	}
	defer rows.Close()

	var result models.PerfResult
	for rows.Next() {
		var r models.PerfRow
		if err := rows.Scan(&r.Line, &r.Sex, &r.AgeDays, &r.Metric, &r.Value, &r.Unit); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
		}
		result.Rows = append(result.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
	}

	if len(result.Rows) == 0 {
		return nil, models.ErrPerfStoreEmpty
	}

	result.Confidence = Confidence(len(result.Rows))
	return &result, nil
}

// Catalog returns the distinct species/line pairs present in the store; the
// clarify route shows it so users see what is actually queryable.
func (c *Client) Catalog(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.pool.Query(ctx,
		`SELECT DISTINCT s.strain_name FROM strains s
		 JOIN documents d ON d.strain_id = s.id
		 ORDER BY s.strain_name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPerfStoreBackend, err)
		}
		lines = append(lines, name)
	}
	return lines, rows.Err()
}

// Ping probes the backing store for the health surface
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// BuildQuery renders the parameterized SQL for a performance query.
// Metric names are matched with the store's "metric_name for %" convention.
func BuildQuery(q models.PerfQuery) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT s.strain_name, d.sex, m.age_min, m.metric_name, m.value_numeric, m.unit
FROM metrics m
JOIN documents d ON d.id = m.document_id
JOIN strains s ON s.id = d.strain_id
WHERE 1=1`)

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Species != "" {
		sb.WriteString(" AND s.species = " + arg(q.Species))
	}
	if q.Line != "" {
		sb.WriteString(" AND s.strain_name = " + arg(q.Line))
	}
	if q.Sex != "" {
		sb.WriteString(" AND d.sex = " + arg(q.Sex))
	}
	switch {
	case q.AgeDays != nil:
		sb.WriteString(" AND m.age_min = " + arg(*q.AgeDays))
	case q.AgeRange != nil:
		sb.WriteString(" AND m.age_min BETWEEN " + arg(q.AgeRange.Min) + " AND " + arg(q.AgeRange.Max))
	}
	if len(q.Metrics) > 0 {
		var patterns []string
		for _, metric := range q.Metrics {
			patterns = append(patterns, "m.metric_name LIKE "+arg(metric+" for %")+" OR m.metric_name = "+arg(metric))
		}
		sb.WriteString(" AND (" + strings.Join(patterns, " OR ") + ")")
	}

	sb.WriteString(" ORDER BY s.strain_name, d.sex, m.age_min, m.metric_name")
	return sb.String(), args
}

// Confidence derives lookup confidence from the matched row count
func Confidence(rowCount int) float64 {
	n := rowCount
	if n > 8 {
		n = 8
	}
	c := 0.2 + 0.1*float64(n)
	if c > 1.0 {
		c = 1.0
	}
	return c
}
