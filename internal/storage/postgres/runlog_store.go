package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spiderctl/spiderctl/internal/spider"
)

const runLogColumns = `id, title, category, job_id, service_id, spec, crawler_count,
	invoke_time, end_time, status, result, error_message`

// RunLogStore implements spider.RunLogStore over Postgres. Rows are
// never deleted; terminal records are audit history.
type RunLogStore struct {
	pool db
}

// NewRunLogStore constructs a RunLogStore over an existing pool.
func NewRunLogStore(pool db) *RunLogStore {
	return &RunLogStore{pool: pool}
}

// CreateRunLog inserts a run record.
func (s *RunLogStore) CreateRunLog(ctx context.Context, rl spider.RunLog) error {
	specJSON, err := json.Marshal(rl.Spec)
	if err != nil {
		return fmt.Errorf("marshal run spec: %w", err)
	}
	query := `INSERT INTO run_logs (` + runLogColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = s.pool.Exec(ctx, query,
		rl.ID, rl.Title, string(rl.Category), rl.JobID, rl.ServiceID, specJSON,
		rl.CrawlerCount, rl.InvokeTime, rl.EndTime,
		string(rl.Status), string(rl.Result), rl.ErrorMessage)
	if err != nil {
		return insertErr("run log", err)
	}
	return nil
}

// GetRunLog fetches a run record by ID.
func (s *RunLogStore) GetRunLog(ctx context.Context, id string) (spider.RunLog, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runLogColumns+` FROM run_logs WHERE id = $1`, id)
	return scanRunLog(row)
}

// ListRunLogs returns the filtered page and the total match count,
// newest invocation first.
func (s *RunLogStore) ListRunLogs(ctx context.Context, filter spider.RunLogFilter) ([]spider.RunLog, int, error) {
	var where whereClause
	if filter.SearchKey != "" {
		where.add("title ILIKE $%d", "%"+filter.SearchKey+"%")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where.add("status = ANY($%d)", statuses)
	}
	if len(filter.Results) > 0 {
		results := make([]string, len(filter.Results))
		for i, r := range filter.Results {
			results[i] = string(r)
		}
		where.add("result = ANY($%d)", results)
	}
	if filter.StartTime != nil {
		where.add("invoke_time >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		where.add("invoke_time <= $%d", *filter.EndTime)
	}
	if filter.JobID != "" {
		where.add("job_id = $%d", filter.JobID)
	}
	if filter.ServiceID != "" {
		where.add("service_id = $%d", filter.ServiceID)
	}

	query := `SELECT ` + runLogColumns + `, count(*) OVER() AS total FROM run_logs` +
		where.sql() + ` ORDER BY invoke_time DESC` + pageSQL(filter.Page, filter.PageSize)

	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var runs []spider.RunLog
	total := 0
	for rows.Next() {
		var (
			rl                       spider.RunLog
			specJSON                 []byte
			category, status, result string
		)
		err := rows.Scan(&rl.ID, &rl.Title, &category, &rl.JobID, &rl.ServiceID,
			&specJSON, &rl.CrawlerCount, &rl.InvokeTime, &rl.EndTime,
			&status, &result, &rl.ErrorMessage, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run log row: %w", err)
		}
		rl.Category = spider.RunCategory(category)
		rl.Status = spider.RunStatus(status)
		rl.Result = spider.RunResult(result)
		if err := json.Unmarshal(specJSON, &rl.Spec); err != nil {
			return nil, 0, fmt.Errorf("decode run spec: %w", err)
		}
		runs = append(runs, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list run logs: %w", err)
	}
	return runs, total, nil
}

// UpdateRunLog applies the non-nil fields of update in one statement.
func (s *RunLogStore) UpdateRunLog(ctx context.Context, id string, update spider.RunLogUpdate) error {
	var set setClause
	if update.Status != nil {
		set.add("status", string(*update.Status))
	}
	if update.Result != nil {
		set.add("result", string(*update.Result))
	}
	if update.ErrorMessage != nil {
		set.add("error_message", *update.ErrorMessage)
	}
	if update.EndTime != nil {
		set.add("end_time", *update.EndTime)
	}
	if set.empty() {
		return nil
	}
	query := fmt.Sprintf("UPDATE run_logs SET %s WHERE id = $%d",
		joinClauses(set.cols), len(set.args)+1)
	tag, err := s.pool.Exec(ctx, query, append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("update run log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return spider.ErrNotFound
	}
	return nil
}

func scanRunLog(row pgx.Row) (spider.RunLog, error) {
	var (
		rl                       spider.RunLog
		specJSON                 []byte
		category, status, result string
	)
	err := row.Scan(&rl.ID, &rl.Title, &category, &rl.JobID, &rl.ServiceID,
		&specJSON, &rl.CrawlerCount, &rl.InvokeTime, &rl.EndTime,
		&status, &result, &rl.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return spider.RunLog{}, spider.ErrNotFound
	}
	if err != nil {
		return spider.RunLog{}, fmt.Errorf("scan run log row: %w", err)
	}
	rl.Category = spider.RunCategory(category)
	rl.Status = spider.RunStatus(status)
	rl.Result = spider.RunResult(result)
	if err := json.Unmarshal(specJSON, &rl.Spec); err != nil {
		return spider.RunLog{}, fmt.Errorf("decode run spec: %w", err)
	}
	return rl, nil
}
