package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/reconquest/buildhook/internal/entities"
	"github.com/reconquest/buildhook/internal/status"
	"github.com/reconquest/buildhook/internal/utils"
	"github.com/reconquest/karma-go"
)

// SQLite implements Store on a local sqlite database. Per-row atomicity
// is all the webhook core asks of its store; there is no multi-document
// transaction anywhere on the reconciliation path.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, karma.Format(err, "unable to open database: %s", path)
	}

	store := &SQLite{db: db}

	err = store.initSchema()
	if err != nil {
		return nil, karma.Format(err, "unable to initialize database schema")
	}

	return store, nil
}

func (store *SQLite) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipelines (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL,
			repository TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT '',
			branch_pattern TEXT NOT NULL DEFAULT '',
			webhook_secret TEXT NOT NULL DEFAULT '',
			last_build TEXT,
			total_builds INTEGER NOT NULL DEFAULT 0,
			successful_builds INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_pipelines_provider_repository
			ON pipelines(provider, repository)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			pipeline_id TEXT NOT NULL,
			organization_id TEXT NOT NULL DEFAULT '',
			number INTEGER NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at DATETIME,
			finished_at DATETIME,
			duration INTEGER NOT NULL DEFAULT 0,
			commit_sha TEXT NOT NULL DEFAULT '',
			commit_message TEXT NOT NULL DEFAULT '',
			commit_author TEXT NOT NULL DEFAULT '',
			commit_branch TEXT NOT NULL DEFAULT '',
			commit_url TEXT NOT NULL DEFAULT '',
			provider_url TEXT NOT NULL DEFAULT '',
			comments TEXT NOT NULL DEFAULT '[]',
			retry_count INTEGER NOT NULL DEFAULT 0,
			retry_of TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_builds_pipeline_external
			ON builds(pipeline_id, external_id) WHERE external_id != ''`,
		`CREATE INDEX IF NOT EXISTS idx_builds_pipeline_sha
			ON builds(pipeline_id, commit_sha)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL DEFAULT '',
			pipeline_id TEXT NOT NULL,
			build_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
	}

	for _, query := range queries {
		_, err := store.db.Exec(query)
		if err != nil {
			return karma.Format(err, "unable to execute schema query")
		}
	}

	return nil
}

func (store *SQLite) Available() error {
	err := store.db.Ping()
	if err != nil {
		return ErrUnavailable
	}

	return nil
}

const pipelineColumns = `id, organization_id, provider, repository, branch,
	branch_pattern, webhook_secret, last_build, total_builds,
	successful_builds, success_rate`

func (store *SQLite) FindPipelineByID(id string) (*entities.Pipeline, error) {
	row := store.db.QueryRow(
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`,
		id,
	)

	return scanPipeline(row)
}

func (store *SQLite) FindPipelineByRepository(
	provider string,
	repository string,
) (*entities.Pipeline, error) {
	row := store.db.QueryRow(
		`SELECT `+pipelineColumns+` FROM pipelines
			WHERE provider = ? AND repository = ?`,
		provider, repository,
	)

	return scanPipeline(row)
}

func scanPipeline(row *sql.Row) (*entities.Pipeline, error) {
	var (
		pipeline  entities.Pipeline
		lastBuild sql.NullString
	)

	err := row.Scan(
		&pipeline.ID,
		&pipeline.OrganizationID,
		&pipeline.Provider,
		&pipeline.Repository,
		&pipeline.Branch,
		&pipeline.BranchPattern,
		&pipeline.WebhookSecret,
		&lastBuild,
		&pipeline.Stats.TotalBuilds,
		&pipeline.Stats.SuccessfulBuilds,
		&pipeline.Stats.SuccessRate,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, karma.Format(err, "unable to scan pipeline row")
	}

	if lastBuild.Valid && lastBuild.String != "" {
		var summary entities.BuildSummary

		err := json.Unmarshal([]byte(lastBuild.String), &summary)
		if err != nil {
			return nil, karma.Format(err, "unable to decode last_build snapshot")
		}

		pipeline.LastBuild = &summary
	}

	return &pipeline, nil
}

func (store *SQLite) SavePipeline(pipeline *entities.Pipeline) error {
	if pipeline.ID == "" {
		pipeline.ID = utils.RandString(24)
	}

	var lastBuild interface{}
	if pipeline.LastBuild != nil {
		encoded, err := json.Marshal(pipeline.LastBuild)
		if err != nil {
			return karma.Format(err, "unable to encode last_build snapshot")
		}

		lastBuild = string(encoded)
	}

	_, err := store.db.Exec(
		`INSERT INTO pipelines (`+pipelineColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				organization_id = excluded.organization_id,
				provider = excluded.provider,
				repository = excluded.repository,
				branch = excluded.branch,
				branch_pattern = excluded.branch_pattern,
				webhook_secret = excluded.webhook_secret,
				last_build = excluded.last_build,
				total_builds = excluded.total_builds,
				successful_builds = excluded.successful_builds,
				success_rate = excluded.success_rate`,
		pipeline.ID,
		pipeline.OrganizationID,
		pipeline.Provider,
		pipeline.Repository,
		pipeline.Branch,
		pipeline.BranchPattern,
		pipeline.WebhookSecret,
		lastBuild,
		pipeline.Stats.TotalBuilds,
		pipeline.Stats.SuccessfulBuilds,
		pipeline.Stats.SuccessRate,
	)
	if err != nil {
		return karma.Format(err, "unable to save pipeline: %s", pipeline.ID)
	}

	return nil
}

const buildColumns = `id, pipeline_id, organization_id, number, external_id,
	status, started_at, finished_at, duration, commit_sha, commit_message,
	commit_author, commit_branch, commit_url, provider_url, comments,
	retry_count, retry_of, created_at, updated_at`

func (store *SQLite) FindBuildByExternalID(
	pipelineID string,
	externalID string,
) (*entities.Build, error) {
	row := store.db.QueryRow(
		`SELECT `+buildColumns+` FROM builds
			WHERE pipeline_id = ? AND external_id = ?`,
		pipelineID, externalID,
	)

	return scanBuild(row)
}

func (store *SQLite) FindBuildByCommitSHA(
	pipelineID string,
	sha string,
) (*entities.Build, error) {
	row := store.db.QueryRow(
		`SELECT `+buildColumns+` FROM builds
			WHERE pipeline_id = ? AND commit_sha = ?
			ORDER BY number DESC LIMIT 1`,
		pipelineID, sha,
	)

	return scanBuild(row)
}

func scanBuild(row *sql.Row) (*entities.Build, error) {
	var (
		build      entities.Build
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		comments   string
	)

	err := row.Scan(
		&build.ID,
		&build.PipelineID,
		&build.OrganizationID,
		&build.Number,
		&build.ExternalID,
		&build.Status,
		&startedAt,
		&finishedAt,
		&build.Duration,
		&build.Commit.SHA,
		&build.Commit.Message,
		&build.Commit.Author,
		&build.Commit.Branch,
		&build.Commit.URL,
		&build.ProviderURL,
		&comments,
		&build.Retries.Count,
		&build.Retries.OriginalBuildID,
		&build.CreatedAt,
		&build.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, karma.Format(err, "unable to scan build row")
	}

	if startedAt.Valid {
		moment := startedAt.Time.UTC()
		build.StartedAt = &moment
	}

	if finishedAt.Valid {
		moment := finishedAt.Time.UTC()
		build.FinishedAt = &moment
	}

	if comments != "" && comments != "[]" {
		err := json.Unmarshal([]byte(comments), &build.Comments)
		if err != nil {
			return nil, karma.Format(err, "unable to decode build comments")
		}
	}

	return &build, nil
}

func (store *SQLite) MaxBuildNumber(pipelineID string) (int, error) {
	var number sql.NullInt64

	err := store.db.QueryRow(
		`SELECT MAX(number) FROM builds WHERE pipeline_id = ?`,
		pipelineID,
	).Scan(&number)
	if err != nil {
		return 0, karma.Format(err, "unable to query max build number")
	}

	return int(number.Int64), nil
}

func (store *SQLite) CreateBuild(build *entities.Build) error {
	if build.ID == "" {
		build.ID = utils.RandString(24)
	}

	now := utils.Now()
	build.CreatedAt = now
	build.UpdatedAt = now

	comments, err := encodeComments(build.Comments)
	if err != nil {
		return err
	}

	_, err = store.db.Exec(
		`INSERT INTO builds (`+buildColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		build.ID,
		build.PipelineID,
		build.OrganizationID,
		build.Number,
		build.ExternalID,
		string(build.Status),
		nullableTime(build.StartedAt),
		nullableTime(build.FinishedAt),
		build.Duration,
		build.Commit.SHA,
		build.Commit.Message,
		build.Commit.Author,
		build.Commit.Branch,
		build.Commit.URL,
		build.ProviderURL,
		comments,
		build.Retries.Count,
		build.Retries.OriginalBuildID,
		build.CreatedAt,
		build.UpdatedAt,
	)
	if err != nil {
		return karma.
			Describe("pipeline", build.PipelineID).
			Describe("external_id", build.ExternalID).
			Format(err, "unable to create build")
	}

	return nil
}

func (store *SQLite) SaveBuild(build *entities.Build) error {
	build.UpdatedAt = utils.Now()

	comments, err := encodeComments(build.Comments)
	if err != nil {
		return err
	}

	_, err = store.db.Exec(
		`UPDATE builds SET
			number = ?, external_id = ?, status = ?, started_at = ?,
			finished_at = ?, duration = ?, commit_sha = ?,
			commit_message = ?, commit_author = ?, commit_branch = ?,
			commit_url = ?, provider_url = ?, comments = ?,
			retry_count = ?, retry_of = ?, updated_at = ?
			WHERE id = ?`,
		build.Number,
		build.ExternalID,
		string(build.Status),
		nullableTime(build.StartedAt),
		nullableTime(build.FinishedAt),
		build.Duration,
		build.Commit.SHA,
		build.Commit.Message,
		build.Commit.Author,
		build.Commit.Branch,
		build.Commit.URL,
		build.ProviderURL,
		comments,
		build.Retries.Count,
		build.Retries.OriginalBuildID,
		build.UpdatedAt,
		build.ID,
	)
	if err != nil {
		return karma.
			Describe("build", build.ID).
			Format(err, "unable to save build")
	}

	return nil
}

func (store *SQLite) BuildStats(pipelineID string) (entities.PipelineStats, error) {
	var stats entities.PipelineStats

	err := store.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(status = ?), 0)
			FROM builds WHERE pipeline_id = ?`,
		string(status.SUCCESS), pipelineID,
	).Scan(&stats.TotalBuilds, &stats.SuccessfulBuilds)
	if err != nil {
		return stats, karma.Format(err, "unable to query build stats")
	}

	if stats.TotalBuilds > 0 {
		stats.SuccessRate =
			float64(stats.SuccessfulBuilds) / float64(stats.TotalBuilds)
	}

	return stats, nil
}

func (store *SQLite) CreateNotification(notification *entities.Notification) error {
	if notification.ID == "" {
		notification.ID = utils.RandString(24)
	}

	notification.CreatedAt = utils.Now()

	_, err := store.db.Exec(
		`INSERT INTO notifications
			(id, organization_id, pipeline_id, build_id, kind, title, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID,
		notification.OrganizationID,
		notification.PipelineID,
		notification.BuildID,
		notification.Kind,
		notification.Title,
		notification.Body,
		notification.CreatedAt,
	)
	if err != nil {
		return karma.Format(err, "unable to create notification")
	}

	return nil
}

func (store *SQLite) Close() error {
	return store.db.Close()
}

func encodeComments(comments []entities.Comment) (string, error) {
	if len(comments) == 0 {
		return "[]", nil
	}

	encoded, err := json.Marshal(comments)
	if err != nil {
		return "", karma.Format(err, "unable to encode build comments")
	}

	return string(encoded), nil
}

func nullableTime(value *time.Time) interface{} {
	if value == nil {
		return nil
	}

	return *value
}
