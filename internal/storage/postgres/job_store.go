package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spiderctl/spiderctl/internal/spider"
)

const jobColumns = `id, title, category, content, schedule, crawler_count, enabled,
	create_time, last_start_time, last_done_time`

// JobStore implements spider.JobStore over Postgres. Content and
// schedule are stored as JSONB so the tagged-union shapes survive
// round-trips unchanged.
type JobStore struct {
	pool db
}

// NewJobStore constructs a JobStore over an existing pool.
func NewJobStore(pool db) *JobStore {
	return &JobStore{pool: pool}
}

// CreateJob inserts a job row.
func (s *JobStore) CreateJob(ctx context.Context, job spider.Job) error {
	content, err := json.Marshal(job.Content)
	if err != nil {
		return fmt.Errorf("marshal job content: %w", err)
	}
	schedule, err := json.Marshal(job.Schedule)
	if err != nil {
		return fmt.Errorf("marshal job schedule: %w", err)
	}
	query := `INSERT INTO jobs (` + jobColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.Title, string(job.Category), content, schedule,
		job.CrawlerCount, job.Enabled, job.CreateTime, job.LastStartTime, job.LastDoneTime)
	if err != nil {
		return insertErr("job", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id string) (spider.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetJobByTitle fetches a job by its unique title.
func (s *JobStore) GetJobByTitle(ctx context.Context, title string) (spider.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE title = $1`, title)
	return scanJob(row)
}

// ListJobs returns the filtered page and the total match count, newest
// first.
func (s *JobStore) ListJobs(ctx context.Context, filter spider.JobFilter) ([]spider.Job, int, error) {
	var where whereClause
	if filter.SearchKey != "" {
		where.add("title ILIKE $%d", "%"+filter.SearchKey+"%")
	}
	if filter.Category != "" {
		where.add("category = $%d", string(filter.Category))
	}
	if filter.Enabled != nil {
		where.add("enabled = $%d", *filter.Enabled)
	}

	query := `SELECT ` + jobColumns + `, count(*) OVER() AS total FROM jobs` +
		where.sql() + ` ORDER BY create_time DESC` + pageSQL(filter.Page, filter.PageSize)

	rows, err := s.pool.Query(ctx, query, where.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []spider.Job
	total := 0
	for rows.Next() {
		var (
			job               spider.Job
			content, schedule []byte
			category          string
		)
		err := rows.Scan(&job.ID, &job.Title, &category, &content, &schedule,
			&job.CrawlerCount, &job.Enabled, &job.CreateTime,
			&job.LastStartTime, &job.LastDoneTime, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job row: %w", err)
		}
		job.Category = spider.JobCategory(category)
		if err := json.Unmarshal(content, &job.Content); err != nil {
			return nil, 0, fmt.Errorf("decode job content: %w", err)
		}
		if err := json.Unmarshal(schedule, &job.Schedule); err != nil {
			return nil, 0, fmt.Errorf("decode job schedule: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// UpdateJob applies the non-nil fields of update in one statement.
func (s *JobStore) UpdateJob(ctx context.Context, id string, update spider.JobUpdate) error {
	var set setClause
	if update.Title != nil {
		set.add("title", *update.Title)
	}
	if update.Content != nil {
		content, err := json.Marshal(update.Content)
		if err != nil {
			return fmt.Errorf("marshal job content: %w", err)
		}
		set.add("content", content)
	}
	if update.Schedule != nil {
		schedule, err := json.Marshal(update.Schedule)
		if err != nil {
			return fmt.Errorf("marshal job schedule: %w", err)
		}
		set.add("schedule", schedule)
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
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d",
		joinClauses(set.cols), len(set.args)+1)
	tag, err := s.pool.Exec(ctx, query, append(set.args, id)...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return spider.ErrNotFound
	}
	return nil
}

// DeleteJob removes a job row.
func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return spider.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (spider.Job, error) {
	var (
		job               spider.Job
		content, schedule []byte
		category          string
	)
	err := row.Scan(&job.ID, &job.Title, &category, &content, &schedule,
		&job.CrawlerCount, &job.Enabled, &job.CreateTime,
		&job.LastStartTime, &job.LastDoneTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return spider.Job{}, spider.ErrNotFound
	}
	if err != nil {
		return spider.Job{}, fmt.Errorf("scan job row: %w", err)
	}
	job.Category = spider.JobCategory(category)
	if err := json.Unmarshal(content, &job.Content); err != nil {
		return spider.Job{}, fmt.Errorf("decode job content: %w", err)
	}
	if err := json.Unmarshal(schedule, &job.Schedule); err != nil {
		return spider.Job{}, fmt.Errorf("decode job schedule: %w", err)
	}
	return job, nil
}

// pageSQL renders LIMIT/OFFSET for a 1-based page. A non-positive page
// size disables pagination.
func pageSQL(page, pageSize int) string {
	if pageSize <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
}

func joinClauses(cols []string) string {
	out := cols[0]
	for _, col := range cols[1:] {
		out += ", " + col
	}
	return out
}
