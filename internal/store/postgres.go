package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kraklabs/repoanalyzer/internal/apperror"
	"github.com/kraklabs/repoanalyzer/internal/model"
)

// schema mirrors the persisted-state layout from the external interfaces
// design: Analysis, FileTree, ParsedFile, with FileTree/ParsedFile keyed by
// a foreign key to Analysis.id and cascading deletes.
const schema = `
CREATE TABLE IF NOT EXISTS analysis (
	id TEXT PRIMARY KEY,
	repository_url TEXT NOT NULL,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	branch TEXT NOT NULL,
	commit_sha TEXT,
	status TEXT NOT NULL,
	error TEXT,
	options JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS file_tree (
	analysis_id TEXT PRIMARY KEY REFERENCES analysis(id) ON DELETE CASCADE,
	tree JSONB NOT NULL,
	total_files INTEGER NOT NULL,
	total_directories INTEGER NOT NULL,
	total_lines BIGINT NOT NULL,
	total_size BIGINT NOT NULL,
	language_breakdown JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS parsed_file (
	id TEXT PRIMARY KEY,
	analysis_id TEXT NOT NULL REFERENCES analysis(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	language TEXT NOT NULL,
	data JSONB NOT NULL,
	UNIQUE(analysis_id, file_path)
);

CREATE INDEX IF NOT EXISTS idx_analysis_created_at ON analysis (created_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_parsed_file_analysis ON parsed_file (analysis_id);
`

// Postgres is the lib/pq-backed implementation of Record.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to dsn and ensures the schema exists, following the
// teacher's bootstrap.InitProject idempotent-init convention.
func Open(dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("store.postgres.ready")
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Create(ctx context.Context, rec model.AnalysisRecord) error {
	opts, err := json.Marshal(rec.Options)
	if err != nil {
		return apperror.NewInternal("marshal options", err)
	}
	query := `INSERT INTO analysis (id, repository_url, owner, name, branch, commit_sha, status, error, options, created_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err = p.db.ExecContext(ctx, query,
		rec.ID, rec.RepositoryURL, rec.Owner, rec.Name, rec.Branch, nullString(rec.CommitSha),
		string(rec.Status), nullString(rec.Error), opts, rec.CreatedAt, rec.StartedAt, rec.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NewConflict("analysis already exists: "+rec.ID, err)
		}
		return apperror.NewServiceUnavailable("create analysis", err)
	}
	return nil
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*model.AnalysisRecord, *model.FileTreeArtifact, []model.ParsedFile, error) {
	rec, err := p.findRecord(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	tree, err := p.findFileTree(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	files, err := p.findParsedFiles(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	return rec, tree, files, nil
}

func (p *Postgres) findRecord(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	query := `SELECT id, repository_url, owner, name, branch, commit_sha, status, error, options, created_at, started_at, completed_at
		FROM analysis WHERE id = $1`
	row := p.db.QueryRowContext(ctx, query, id)

	var rec model.AnalysisRecord
	var commitSha, errMsg sql.NullString
	var optsRaw []byte
	var status string
	if err := row.Scan(&rec.ID, &rec.RepositoryURL, &rec.Owner, &rec.Name, &rec.Branch,
		&commitSha, &status, &errMsg, &optsRaw, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("analysis not found: "+id, nil)
		}
		return nil, apperror.NewServiceUnavailable("find analysis", err)
	}
	rec.CommitSha = commitSha.String
	rec.Error = errMsg.String
	rec.Status = model.Status(status)
	if err := json.Unmarshal(optsRaw, &rec.Options); err != nil {
		return nil, apperror.NewInternal("unmarshal options", err)
	}
	return &rec, nil
}

func (p *Postgres) findFileTree(ctx context.Context, analysisID string) (*model.FileTreeArtifact, error) {
	query := `SELECT tree, total_files, total_directories, total_lines, total_size, language_breakdown
		FROM file_tree WHERE analysis_id = $1`
	row := p.db.QueryRowContext(ctx, query, analysisID)

	var artifact model.FileTreeArtifact
	artifact.AnalysisID = analysisID
	var treeRaw, langRaw []byte
	if err := row.Scan(&treeRaw, &artifact.Statistics.TotalFiles, &artifact.Statistics.TotalDirectories,
		&artifact.Statistics.TotalLines, &artifact.Statistics.TotalSize, &langRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.NewServiceUnavailable("find file tree", err)
	}
	var root model.Node
	if err := json.Unmarshal(treeRaw, &root); err != nil {
		return nil, apperror.NewInternal("unmarshal tree", err)
	}
	artifact.Root = &root
	if err := json.Unmarshal(langRaw, &artifact.Statistics.LanguageBreakdown); err != nil {
		return nil, apperror.NewInternal("unmarshal language breakdown", err)
	}
	return &artifact, nil
}

func (p *Postgres) findParsedFiles(ctx context.Context, analysisID string) ([]model.ParsedFile, error) {
	query := `SELECT file_path, language, data FROM parsed_file WHERE analysis_id = $1 ORDER BY file_path`
	rows, err := p.db.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, apperror.NewServiceUnavailable("list parsed files", err)
	}
	defer rows.Close()

	var out []model.ParsedFile
	for rows.Next() {
		var path, language string
		var dataRaw []byte
		if err := rows.Scan(&path, &language, &dataRaw); err != nil {
			return nil, apperror.NewServiceUnavailable("scan parsed file", err)
		}
		pf := model.ParsedFile{AnalysisID: analysisID, Path: path, Language: language}
		var body struct {
			Imports   []model.Import    `json:"imports"`
			Exports   []model.Export    `json:"exports"`
			Functions []model.Function  `json:"functions"`
			Classes   []model.Class     `json:"classes"`
		}
		if err := json.Unmarshal(dataRaw, &body); err != nil {
			return nil, apperror.NewInternal("unmarshal parsed file", err)
		}
		pf.Imports, pf.Exports, pf.Functions, pf.Classes = body.Imports, body.Exports, body.Functions, body.Classes
		out = append(out, pf)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status model.Status, errMsg string) error {
	now := time.Now().UTC()

	var query string
	var args []any
	switch status {
	case model.StatusProcessing:
		query = `UPDATE analysis SET status = $1, started_at = COALESCE(started_at, $2) WHERE id = $3`
		args = []any{string(status), now, id}
	case model.StatusCompleted, model.StatusFailed:
		query = `UPDATE analysis SET status = $1, error = $2, completed_at = $3 WHERE id = $4`
		args = []any{string(status), nullString(errMsg), now, id}
	default:
		query = `UPDATE analysis SET status = $1 WHERE id = $2`
		args = []any{string(status), id}
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperror.NewServiceUnavailable("update status", err)
	}
	return requireRowAffected(res, id)
}

func (p *Postgres) UpdateCommitSha(ctx context.Context, id string, sha string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE analysis SET commit_sha = $1 WHERE id = $2`, sha, id)
	if err != nil {
		return apperror.NewServiceUnavailable("update commit sha", err)
	}
	return requireRowAffected(res, id)
}

func (p *Postgres) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	countQuery := `SELECT count(*) FROM analysis WHERE ($1 = '' OR status = $1)`
	var total int
	if err := p.db.QueryRowContext(ctx, countQuery, string(filter.Status)).Scan(&total); err != nil {
		return ListResult{}, apperror.NewServiceUnavailable("count analyses", err)
	}

	listQuery := `SELECT id, repository_url, owner, name, branch, commit_sha, status, error, options, created_at, started_at, completed_at
		FROM analysis WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id ASC
		LIMIT $2 OFFSET $3`
	rows, err := p.db.QueryContext(ctx, listQuery, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return ListResult{}, apperror.NewServiceUnavailable("list analyses", err)
	}
	defer rows.Close()

	var out []model.AnalysisRecord
	for rows.Next() {
		var rec model.AnalysisRecord
		var commitSha, errMsg sql.NullString
		var optsRaw []byte
		var status string
		if err := rows.Scan(&rec.ID, &rec.RepositoryURL, &rec.Owner, &rec.Name, &rec.Branch,
			&commitSha, &status, &errMsg, &optsRaw, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return ListResult{}, apperror.NewServiceUnavailable("scan analysis", err)
		}
		rec.CommitSha = commitSha.String
		rec.Error = errMsg.String
		rec.Status = model.Status(status)
		_ = json.Unmarshal(optsRaw, &rec.Options)
		out = append(out, rec)
	}
	return ListResult{Analyses: out, Total: total}, rows.Err()
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM analysis WHERE id = $1`, id)
	if err != nil {
		return apperror.NewServiceUnavailable("delete analysis", err)
	}
	return requireRowAffected(res, id)
}

func (p *Postgres) SaveFileTree(ctx context.Context, analysisID string, artifact model.FileTreeArtifact) error {
	treeRaw, err := json.Marshal(artifact.Root)
	if err != nil {
		return apperror.NewInternal("marshal tree", err)
	}
	langRaw, err := json.Marshal(artifact.Statistics.LanguageBreakdown)
	if err != nil {
		return apperror.NewInternal("marshal language breakdown", err)
	}

	query := `INSERT INTO file_tree (analysis_id, tree, total_files, total_directories, total_lines, total_size, language_breakdown)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (analysis_id) DO UPDATE SET
			tree = EXCLUDED.tree,
			total_files = EXCLUDED.total_files,
			total_directories = EXCLUDED.total_directories,
			total_lines = EXCLUDED.total_lines,
			total_size = EXCLUDED.total_size,
			language_breakdown = EXCLUDED.language_breakdown`
	_, err = p.db.ExecContext(ctx, query, analysisID, treeRaw,
		artifact.Statistics.TotalFiles, artifact.Statistics.TotalDirectories,
		artifact.Statistics.TotalLines, artifact.Statistics.TotalSize, langRaw)
	if err != nil {
		return apperror.NewServiceUnavailable("save file tree", err)
	}
	return nil
}

func (p *Postgres) SaveParsedFiles(ctx context.Context, analysisID string, files []model.ParsedFile) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.NewServiceUnavailable("begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO parsed_file (id, analysis_id, file_path, language, data)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (analysis_id, file_path) DO UPDATE SET language = EXCLUDED.language, data = EXCLUDED.data`)
	if err != nil {
		return apperror.NewServiceUnavailable("prepare insert", err)
	}
	defer stmt.Close()

	for _, f := range files {
		body := struct {
			Imports   []model.Import   `json:"imports"`
			Exports   []model.Export   `json:"exports"`
			Functions []model.Function `json:"functions"`
			Classes   []model.Class    `json:"classes"`
		}{f.Imports, f.Exports, f.Functions, f.Classes}
		dataRaw, err := json.Marshal(body)
		if err != nil {
			return apperror.NewInternal("marshal parsed file", err)
		}
		id := analysisID + ":" + f.Path
		if _, err := stmt.ExecContext(ctx, id, analysisID, f.Path, f.Language, dataRaw); err != nil {
			return apperror.NewServiceUnavailable("save parsed file", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.NewServiceUnavailable("commit parsed files", err)
	}
	return nil
}

// Ping is used by the health endpoint to report the database's liveness.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.NewServiceUnavailable("rows affected", err)
	}
	if n == 0 {
		return apperror.NewNotFound("analysis not found: "+id, nil)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint"))
}
