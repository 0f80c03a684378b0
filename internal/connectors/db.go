package connectors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// database/sql driver names per configured driver alias
var sqlDrivers = map[string]string{
	"postgres":   "pgx",
	"postgresql": "pgx",
	"pgx":        "pgx",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
}

// DBConnector implements ArchiveConnector against an archive's own
// relational index, read through a configurable column mapping
type DBConnector struct {
	BaseConnector
	db      *sql.DB
	driver  string
	mapping models.DBQueryMapping
}

// NewDBConnector opens the pool. No connection is made until the first
// query or Ping.
func NewDBConnector(prop models.ConnectorProperty) (*DBConnector, error) {
	if err := prop.Validate(); err != nil {
		return nil, err
	}
	op := "connector " + prop.ID
	cfg := prop.DB

	driver, ok := sqlDrivers[strings.ToLower(cfg.Driver)]
	if !ok {
		return nil, apperr.Newf(apperr.KindConfiguration, op, "unsupported db driver %q", cfg.Driver)
	}

	dsn := cfg.URI
	if driver == "pgx" && cfg.User != "" {
		u, err := url.Parse(cfg.URI)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindConfiguration, op, err)
		}
		u.User = url.UserPassword(cfg.User, cfg.Password)
		dsn = u.String()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, op, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	log.Debug().
		Str("archive_id", prop.ID).
		Str("driver", driver).
		Str("table", cfg.Query.Table).
		Msg("Created DB connector")

	return &DBConnector{
		BaseConnector: BaseConnector{prop: prop},
		db:            db,
		driver:        driver,
		mapping:       cfg.Query,
	}, nil
}

func (d *DBConnector) Capabilities() []string {
	return []string{"SQL"}
}

// column binds a mapped column to the result field it fills
type column struct {
	name  string
	field func(*models.ArchiveQueryResult) *string
}

// columns returns the mapped columns selected at level, skipping the ones
// left blank in the mapping
func (d *DBConnector) columns(level models.QueryLevel) []column {
	m := d.mapping
	candidates := []column{
		{m.StudyUID, func(r *models.ArchiveQueryResult) *string { return &r.StudyInstanceUID }},
	}

	switch level {
	case models.QueryLevelInstance:
		candidates = append(candidates,
			column{m.SeriesUID, func(r *models.ArchiveQueryResult) *string { return &r.SeriesInstanceUID }},
			column{m.InstanceUID, func(r *models.ArchiveQueryResult) *string { return &r.SOPInstanceUID }},
			column{m.InstanceNumber, func(r *models.ArchiveQueryResult) *string { return &r.InstanceNumber }},
		)
	case models.QueryLevelSeries:
		candidates = append(candidates,
			column{m.SeriesUID, func(r *models.ArchiveQueryResult) *string { return &r.SeriesInstanceUID }},
			column{m.SeriesDescription, func(r *models.ArchiveQueryResult) *string { return &r.SeriesDescription }},
			column{m.SeriesNumber, func(r *models.ArchiveQueryResult) *string { return &r.SeriesNumber }},
			column{m.Modality, func(r *models.ArchiveQueryResult) *string { return &r.Modality }},
		)
	default:
		candidates = append(candidates,
			column{m.StudyDescription, func(r *models.ArchiveQueryResult) *string { return &r.StudyDescription }},
			column{m.StudyDate, func(r *models.ArchiveQueryResult) *string { return &r.StudyDate }},
			column{m.AccessionNumber, func(r *models.ArchiveQueryResult) *string { return &r.AccessionNumber }},
			column{m.StudyID, func(r *models.ArchiveQueryResult) *string { return &r.StudyID }},
			column{m.ReferringPhysician, func(r *models.ArchiveQueryResult) *string { return &r.ReferringPhysician }},
			column{m.PatientID, func(r *models.ArchiveQueryResult) *string { return &r.PatientID }},
			column{m.PatientName, func(r *models.ArchiveQueryResult) *string { return &r.PatientName }},
			column{m.PatientBirthDate, func(r *models.ArchiveQueryResult) *string { return &r.PatientBirthDate }},
			column{m.PatientSex, func(r *models.ArchiveQueryResult) *string { return &r.PatientSex }},
		)
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c.name != "" {
			out = append(out, c)
		}
	}
	return out
}

// buildQuery renders the SELECT for criteria. Identifiers come from the
// validated mapping; every value is a bind parameter.
func (d *DBConnector) buildQuery(criteria models.SearchCriteria) (string, []any, []column) {
	level := criteria.Level()
	cols := d.columns(level)
	m := d.mapping

	var args []any
	placeholder := func(v any) string {
		args = append(args, v)
		if d.driver == "pgx" {
			return "$" + strconv.Itoa(len(args))
		}
		return "?"
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}

	var where []string
	eq := func(col, value string) {
		if col == "" || strings.TrimSpace(value) == "" {
			return
		}
		where = append(where, col+" = "+placeholder(value))
	}
	eq(m.PatientID, criteria.PatientID)
	eq(m.PatientName, criteria.PatientName)
	eq(m.StudyUID, criteria.StudyUID)
	eq(m.AccessionNumber, criteria.AccessionNumber)
	eq(m.SeriesUID, criteria.SeriesUID)
	eq(m.InstanceUID, criteria.InstanceUID)

	var b strings.Builder
	b.WriteString("SELECT DISTINCT ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(" FROM ")
	b.WriteString(m.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	order := []string{m.StudyUID}
	switch level {
	case models.QueryLevelSeries:
		order = append(order, m.SeriesUID)
	case models.QueryLevelInstance:
		order = append(order, m.SeriesUID, m.InstanceUID)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))

	if criteria.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(placeholder(criteria.Limit))
	}
	if criteria.Offset > 0 {
		if criteria.Limit <= 0 && d.driver == "sqlite" {
			// sqlite only accepts OFFSET after a LIMIT
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(placeholder(criteria.Offset))
	}

	return b.String(), args, cols
}

// Search runs the mapped query against the archive index
func (d *DBConnector) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error) {
	query, args, cols := d.buildQuery(criteria)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, d.classify(ctx, err)
	}
	defer rows.Close()

	results := []models.ArchiveQueryResult{}
	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, d.classify(ctx, err)
		}
		var r models.ArchiveQueryResult
		for i, c := range cols {
			*c.field(&r) = values[i].String
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, d.classify(ctx, err)
	}

	d.stamp(results)

	var cont *models.Continuation
	if criteria.Limit > 0 && len(results) == criteria.Limit {
		cont = &models.Continuation{Offset: criteria.Offset + criteria.Limit, Limit: criteria.Limit}
	}
	return results, cont, nil
}

// classify separates an unreachable database from a failing query.
// Rejected credentials (SQLSTATE class 28) and missing privileges (42501)
// are access errors and never retried.
func (d *DBConnector) classify(ctx context.Context, err error) error {
	if ctxErr := contextError(ctx, err); ctxErr != nil {
		return ctxErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "42501") {
		return apperr.Wrap(apperr.KindArchiveNoAccess, opName(d, "query"), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.KindArchiveUnavailable, opName(d, "query"), err)
	}
	return apperr.Wrap(apperr.KindArchiveServerError, opName(d, "query"), err)
}

// Ping verifies a connection to the archive database can be made
func (d *DBConnector) Ping(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{
		ConnectorID: d.ID(),
		LastChecked: start,
	}

	err := d.db.PingContext(ctx)
	status.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		err = d.classify(ctx, err)
		status.ErrorMessage = fmt.Sprintf("ping failed: %v", err)
		return status, err
	}

	status.IsConnected = true
	status.Capabilities = d.Capabilities()
	return status, nil
}

// Close closes the connection pool
func (d *DBConnector) Close() error {
	return d.db.Close()
}
