// Package store provides read-only access to the Copilot CLI's session
// store database. The CLI is the sole writer; every query here opens the
// database in read-only mode for the duration of one request and closes it
// again, so no lock or transaction ever spans requests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// ErrStoreMissing signals that the CLI has not created its session store
// yet. The HTTP layer maps this to 503 with a remediation hint rather than
// treating it as a server fault.
var ErrStoreMissing = errors.New("session store not found")

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("%w at %s (enable the SESSION_STORE experimental feature in ~/.copilot/config.json and start a new Copilot session)", ErrStoreMissing, s.path)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", s.path))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session store: %w", err)
	}
	return db, nil
}

// SessionRow is one sessions-table row plus the aggregate columns the list
// view needs. Nullable text columns come back as empty strings.
type SessionRow struct {
	ID              string `json:"id"`
	Cwd             string `json:"cwd"`
	Repository      string `json:"repository"`
	Branch          string `json:"branch"`
	Summary         string `json:"summary"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	TurnCount       int    `json:"turn_count"`
	FileCount       int    `json:"file_count"`
	CheckpointCount int    `json:"checkpoint_count"`

	// Large text fields used for grouping and activity summaries only;
	// never serialized to the client.
	FirstMsg       string `json:"-"`
	LastCpTitle    string `json:"-"`
	LastCpOverview string `json:"-"`
}

const sessionsQuery = `
SELECT
    s.id, s.cwd, s.repository, s.branch, s.summary,
    s.created_at, s.updated_at,
    (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id) AS turn_count,
    (SELECT COUNT(*) FROM session_files sf WHERE sf.session_id = s.id) AS file_count,
    (SELECT COUNT(*) FROM checkpoints cp WHERE cp.session_id = s.id) AS checkpoint_count,
    (SELECT user_message FROM turns t WHERE t.session_id = s.id AND t.turn_index = 0) AS first_msg,
    (SELECT title FROM checkpoints c WHERE c.session_id = s.id ORDER BY checkpoint_number DESC LIMIT 1) AS last_cp_title,
    (SELECT overview FROM checkpoints c WHERE c.session_id = s.id ORDER BY checkpoint_number DESC LIMIT 1) AS last_cp_overview
FROM sessions s
ORDER BY s.updated_at DESC`

// Sessions returns every session, most recently updated first.
func (s *Store) Sessions(ctx context.Context) ([]SessionRow, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sessionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var result []SessionRow
	for rows.Next() {
		var (
			r                                                  SessionRow
			cwd, repo, branch, summary, first, cpTitle, cpOver sql.NullString
		)
		if err := rows.Scan(&r.ID, &cwd, &repo, &branch, &summary,
			&r.CreatedAt, &r.UpdatedAt,
			&r.TurnCount, &r.FileCount, &r.CheckpointCount,
			&first, &cpTitle, &cpOver); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		r.Cwd = cwd.String
		r.Repository = repo.String
		r.Branch = branch.String
		r.Summary = summary.String
		r.FirstMsg = first.String
		r.LastCpTitle = cpTitle.String
		r.LastCpOverview = cpOver.String
		result = append(result, r)
	}
	return result, rows.Err()
}

type Checkpoint struct {
	Number    int    `json:"checkpoint_number"`
	Title     string `json:"title"`
	Overview  string `json:"overview"`
	NextSteps string `json:"next_steps"`
}

type Ref struct {
	Type  string `json:"ref_type"`
	Value string `json:"ref_value"`
}

type Turn struct {
	Index             int    `json:"turn_index"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
}

// Checkpoints returns a session's checkpoints in order.
func (s *Store) Checkpoints(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT checkpoint_number, title, overview, next_steps
FROM checkpoints WHERE session_id = ? ORDER BY checkpoint_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var result []Checkpoint
	for rows.Next() {
		var (
			cp                         Checkpoint
			title, overview, nextSteps sql.NullString
		)
		if err := rows.Scan(&cp.Number, &title, &overview, &nextSteps); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Title = title.String
		cp.Overview = overview.String
		cp.NextSteps = nextSteps.String
		result = append(result, cp)
	}
	return result, rows.Err()
}

// Refs returns a session's cross-references (PRs, issues, URLs).
func (s *Store) Refs(ctx context.Context, sessionID string) ([]Ref, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT ref_type, ref_value FROM session_refs WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query refs: %w", err)
	}
	defer rows.Close()

	var result []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.Type, &r.Value); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecentTurns returns the last limit turns in ascending order.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT turn_index, user_message, assistant_response
FROM turns WHERE session_id = ? ORDER BY turn_index DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var result []Turn
	for rows.Next() {
		var (
			t         Turn
			user, asst sql.NullString
		)
		if err := rows.Scan(&t.Index, &user, &asst); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.UserMessage = user.String
		t.AssistantResponse = asst.String
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; callers want file order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// Files returns the distinct files a session touched.
func (s *Store) Files(ctx context.Context, sessionID string) ([]string, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT DISTINCT file_path FROM session_files WHERE session_id = ? ORDER BY file_path`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session files: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan file path: %w", err)
		}
		result = append(result, path)
	}
	return result, rows.Err()
}

// FileEntry is one row of the cross-session most-touched-files view.
type FileEntry struct {
	FilePath     string `json:"file_path"`
	SessionCount int    `json:"session_count"`
	SessionIDs   string `json:"session_ids"` // comma-separated
}

// TopFiles returns the files touched by the most sessions.
func (s *Store) TopFiles(ctx context.Context, limit int) ([]FileEntry, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT sf.file_path, COUNT(DISTINCT sf.session_id) AS session_count,
       GROUP_CONCAT(DISTINCT sf.session_id) AS session_ids
FROM session_files sf GROUP BY sf.file_path
ORDER BY session_count DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top files: %w", err)
	}
	defer rows.Close()

	var result []FileEntry
	for rows.Next() {
		var (
			e   FileEntry
			ids sql.NullString
		)
		if err := rows.Scan(&e.FilePath, &e.SessionCount, &ids); err != nil {
			return nil, fmt.Errorf("scan file entry: %w", err)
		}
		e.SessionIDs = ids.String
		result = append(result, e)
	}
	return result, rows.Err()
}
