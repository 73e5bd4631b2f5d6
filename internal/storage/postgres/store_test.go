package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/spiderctl/spiderctl/internal/spec"
	"github.com/spiderctl/spiderctl/internal/spider"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleSpec() spec.CrawlSpec {
	return spec.CrawlSpec{
		AppID:    "app",
		CrawlID:  "crawl",
		SpiderID: "books",
		URL:      "https://example.com",
	}
}

func sampleJob(created time.Time) spider.Job {
	s := sampleSpec()
	return spider.Job{
		ID:           "job-1",
		Title:        "books nightly",
		Category:     spider.JobCategoryTask,
		Content:      spider.NewTaskContent(s),
		CrawlerCount: 2,
		Enabled:      true,
		CreateTime:   created,
	}
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	job := sampleJob(now)

	content, err := json.Marshal(job.Content)
	require.NoError(t, err)
	schedule, err := json.Marshal(job.Schedule)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.Title, "TASK", content, schedule,
			job.CrawlerCount, job.Enabled, job.CreateTime,
			(*time.Time)(nil), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)

	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, spider.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobByTitleDecodesContent(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	job := sampleJob(now)

	content, err := json.Marshal(job.Content)
	require.NoError(t, err)
	schedule, err := json.Marshal(job.Schedule)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "title", "category", "content", "schedule", "crawler_count",
		"enabled", "create_time", "last_start_time", "last_done_time",
	}).AddRow(job.ID, job.Title, "TASK", content, schedule,
		job.CrawlerCount, job.Enabled, job.CreateTime, (*time.Time)(nil), (*time.Time)(nil))

	mock.ExpectQuery("FROM jobs WHERE title").
		WithArgs(job.Title).
		WillReturnRows(rows)

	got, err := store.GetJobByTitle(context.Background(), job.Title)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, spider.JobCategoryTask, got.Category)
	require.NotNil(t, got.Content.Spec)
	require.Equal(t, "books", got.Content.Spec.SpiderID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobBuildsPartialStatement(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)

	enabled := false
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(`UPDATE jobs SET enabled = \$1, last_start_time = \$2 WHERE id = \$3`).
		WithArgs(enabled, now, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJob(context.Background(), "job-1",
		spider.JobUpdate{Enabled: &enabled, LastStartTime: &now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobNoFieldsIsNoOp(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)

	require.NoError(t, store.UpdateJob(context.Background(), "job-1", spider.JobUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)

	count := 3
	mock.ExpectExec("UPDATE jobs SET crawler_count").
		WithArgs(count, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJob(context.Background(), "ghost", spider.JobUpdate{CrawlerCount: &count})
	require.ErrorIs(t, err, spider.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.DeleteJob(context.Background(), "job-1"))

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, store.DeleteJob(context.Background(), "job-1"), spider.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsAppliesFiltersAndPaging(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewJobStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	job := sampleJob(now)

	content, err := json.Marshal(job.Content)
	require.NoError(t, err)
	schedule, err := json.Marshal(job.Schedule)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "title", "category", "content", "schedule", "crawler_count",
		"enabled", "create_time", "last_start_time", "last_done_time", "total",
	}).AddRow(job.ID, job.Title, "TASK", content, schedule,
		job.CrawlerCount, job.Enabled, job.CreateTime, (*time.Time)(nil), (*time.Time)(nil), 7)

	enabled := true
	mock.ExpectQuery(`FROM jobs WHERE title ILIKE \$1 AND enabled = \$2 ORDER BY create_time DESC LIMIT 5 OFFSET 5`).
		WithArgs("%books%", enabled).
		WillReturnRows(rows)

	jobs, total, err := store.ListJobs(context.Background(), spider.JobFilter{
		SearchKey: "books",
		Enabled:   &enabled,
		Page:      2,
		PageSize:  5,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 7, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateServiceInsertsRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewServiceStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	svc := spider.Service{
		ID:           "svc-1",
		Title:        "site crawl",
		Spec:         sampleSpec(),
		Params:       []spec.Param{{Name: "url", Default: "https://example.com"}},
		CrawlerCount: 3,
		Enabled:      true,
		CreateTime:   now,
	}

	specJSON, err := json.Marshal(svc.Spec)
	require.NoError(t, err)
	params, err := json.Marshal(svc.Params)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO services").
		WithArgs(svc.ID, svc.Title, specJSON, params, svc.CrawlerCount,
			svc.Enabled, svc.CreateTime, (*time.Time)(nil), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateService(context.Background(), svc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetServiceDecodesParams(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewServiceStore(mock)
	now := time.Unix(1700000000, 0).UTC()

	specJSON, err := json.Marshal(sampleSpec())
	require.NoError(t, err)
	params := []byte(`[{"name":"section","default":"news"}]`)

	rows := pgxmock.NewRows([]string{
		"id", "title", "spec", "params", "crawler_count", "enabled",
		"create_time", "last_start_time", "last_done_time",
	}).AddRow("svc-1", "site crawl", specJSON, params, 3, true, now,
		(*time.Time)(nil), (*time.Time)(nil))

	mock.ExpectQuery("FROM services WHERE id").
		WithArgs("svc-1").
		WillReturnRows(rows)

	svc, err := store.GetService(context.Background(), "svc-1")
	require.NoError(t, err)
	require.Len(t, svc.Params, 1)
	require.Equal(t, "section", svc.Params[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunLogInsertsRow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewRunLogStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	rl := spider.RunLog{
		ID:           "run-1",
		Title:        "books nightly",
		Category:     spider.RunCategoryJob,
		JobID:        "job-1",
		Spec:         sampleSpec(),
		CrawlerCount: 2,
		InvokeTime:   now,
		Status:       spider.RunStatusInit,
		Result:       spider.RunResultUnknown,
	}

	specJSON, err := json.Marshal(rl.Spec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO run_logs").
		WithArgs(rl.ID, rl.Title, "JOB", rl.JobID, "", specJSON,
			rl.CrawlerCount, rl.InvokeTime, (*time.Time)(nil),
			"INIT", "UNKNOWN", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateRunLog(context.Background(), rl))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunLogsFiltersByStatusAndWindow(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewRunLogStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	from := now.Add(-time.Hour)

	specJSON, err := json.Marshal(sampleSpec())
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "title", "category", "job_id", "service_id", "spec", "crawler_count",
		"invoke_time", "end_time", "status", "result", "error_message", "total",
	}).AddRow("run-1", "books nightly", "JOB", "job-1", "", specJSON, 2,
		now, (*time.Time)(nil), "RUNNING", "UNKNOWN", "", 1)

	mock.ExpectQuery(`FROM run_logs WHERE status = ANY\(\$1\) AND invoke_time >= \$2 AND job_id = \$3`).
		WithArgs([]string{"RUNNING", "PAUSED"}, from, "job-1").
		WillReturnRows(rows)

	runs, total, err := store.ListRunLogs(context.Background(), spider.RunLogFilter{
		Statuses:  []spider.RunStatus{spider.RunStatusRunning, spider.RunStatusPaused},
		StartTime: &from,
		JobID:     "job-1",
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 1, total)
	require.Equal(t, spider.RunStatusRunning, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunLogTerminalFields(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	store := NewRunLogStore(mock)
	now := time.Unix(1700000000, 0).UTC()

	status := spider.RunStatusSent
	result := spider.RunResultFailure
	msg := "crawl service unreachable"
	mock.ExpectExec(`UPDATE run_logs SET status = \$1, result = \$2, error_message = \$3, end_time = \$4 WHERE id = \$5`).
		WithArgs("SENT", "FAILURE", msg, now, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateRunLog(context.Background(), "run-1", spider.RunLogUpdate{
		Status:       &status,
		Result:       &result,
		ErrorMessage: &msg,
		EndTime:      &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	mock := newMock(t)
	for _, pattern := range []string{
		"CREATE TABLE IF NOT EXISTS jobs",
		"CREATE TABLE IF NOT EXISTS services",
		"CREATE TABLE IF NOT EXISTS run_logs",
		"CREATE INDEX IF NOT EXISTS run_logs_invoke_time_idx",
		"CREATE INDEX IF NOT EXISTS run_logs_job_id_idx",
	} {
		mock.ExpectExec(pattern).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
