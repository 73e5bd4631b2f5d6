package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spiderctl/spiderctl/internal/spec"
	"github.com/spiderctl/spiderctl/internal/spider"
)

const serviceColumns = `id, title, spec, params, crawler_count, enabled,
	create_time, last_start_time, last_done_time`

// ServiceStore implements spider.ServiceStore over Postgres.
type ServiceStore struct {
	pool db
}

// NewServiceStore constructs a ServiceStore over an existing pool.
func NewServiceStore(pool db) *ServiceStore {
	return &ServiceStore{pool: pool}
}

// CreateService inserts a service row.
func (s *ServiceStore) CreateService(ctx context.Context, svc spider.Service) error {
	specJSON, err := json.Marshal(svc.Spec)
	if err != nil {
		return fmt.Errorf("marshal service spec: %w", err)
	}
	params, err := json.Marshal(svc.Params)
	if err != nil {
		return fmt.Errorf("marshal service params: %w", err)
	}
	query := `INSERT INTO services (` + serviceColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = s.pool.Exec(ctx, query,
		svc.ID, svc.Title, specJSON, params, svc.CrawlerCount, svc.Enabled,
		svc.CreateTime, svc.LastStartTime, svc.LastDoneTime)
	if err != nil {
		return insertErr("service", err)
	}
	return nil
}

// GetService fetches a service by ID.
func (s *ServiceStore) GetService(ctx context.Context, id string) (spider.Service, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	return scanService(row)
}

// GetServiceByTitle fetches a service by its unique title.
func (s *ServiceStore) GetServiceByTitle(ctx context.Context, title string) (spider.Service, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE title = $1`, title)
	return scanService(row)
}

// ListServices returns the filtered page and the total match count,
// newest first.
func (s *ServiceStore) ListServices(ctx context.Context, filter spider.ServiceFilter) ([]spider.Service, int, error) {
	var where whereClause
	if filter.SearchKey != "" {
		where.add("title ILIKE $%d", "%"+filter.SearchKey+"%")
	}
	if filter.Enabled != nil {
		where.add("enabled = $%d", *filter.Enabled)
	}

	query := `SELECT ` + serviceColumns + `, count(*) OVER() AS total FROM services` +
		where.sql() + ` ORDER BY create_time DESC` + pageSQL(filter.Page, filter.PageSize)

	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []spider.Service
	total := 0
	for rows.Next() {
		var (
			svc              spider.Service
			specJSON, params []byte
		)
		err := rows.Scan(&svc.ID, &svc.Title, &specJSON, &params,
			&svc.CrawlerCount, &svc.Enabled, &svc.CreateTime,
			&svc.LastStartTime, &svc.LastDoneTime, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan service row: %w", err)
		}
		if err := decodeService(&svc, specJSON, params); err != nil {
			return nil, 0, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}
	return services, total, nil
}

// UpdateService applies the non-nil fields of update in one statement.
func (s *ServiceStore) UpdateService(ctx context.Context, id string, update spider.ServiceUpdate) error {
	var set setClause
	if update.Title != nil {
		set.add("title", *update.Title)
	}
	if update.Spec != nil {
		specJSON, err := json.Marshal(update.Spec)
		if err != nil {
			return fmt.Errorf("marshal service spec: %w", err)
		}
		set.add("spec", specJSON)
	}
	if update.Params != nil {
		params, err := json.Marshal(*update.Params)
		if err != nil {
			return fmt.Errorf("marshal service params: %w", err)
		}
		set.add("params", params)
	}
	if update.CrawlerCount != nil {
		set.add("crawler_count", *update.CrawlerCount)
	}
	if update.Enabled != nil {
		set.add("enabled", *update.Enabled)
	}
	if update.LastStartTime != nil {
		set.add("last_start_time", *update.LastStartTime)
	}
	if update.LastDoneTime != nil {
		set.add("last_done_time", *update.LastDoneTime)
	}
	if set.empty() {
		return nil
	}
	query := fmt.Sprintf("UPDATE services SET %s WHERE id = $%d",
		joinClauses(set.cols), len(set.args)+1)
	tag, err := s.pool.Exec(ctx, query, append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return spider.ErrNotFound
	}
	return nil
}

// DeleteService removes a service row.
func (s *ServiceStore) DeleteService(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return spider.ErrNotFound
	}
	return nil
}

func scanService(row pgx.Row) (spider.Service, error) {
	var (
		svc              spider.Service
		specJSON, params []byte
	)
	err := row.Scan(&svc.ID, &svc.Title, &specJSON, &params,
		&svc.CrawlerCount, &svc.Enabled, &svc.CreateTime,
		&svc.LastStartTime, &svc.LastDoneTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return spider.Service{}, spider.ErrNotFound
	}
	if err != nil {
		return spider.Service{}, fmt.Errorf("scan service row: %w", err)
	}
	if err := decodeService(&svc, specJSON, params); err != nil {
		return spider.Service{}, err
	}
	return svc, nil
}

func decodeService(svc *spider.Service, specJSON, params []byte) error {
	if err := json.Unmarshal(specJSON, &svc.Spec); err != nil {
		return fmt.Errorf("decode service spec: %w", err)
	}
	if len(params) > 0 {
		var decoded []spec.Param
		if err := json.Unmarshal(params, &decoded); err != nil {
			return fmt.Errorf("decode service params: %w", err)
		}
		svc.Params = decoded
	}
	return nil
}
