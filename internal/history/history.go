// Package history persists finished and in-flight runs to Postgres so the
// operator can review past mornings.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/db"
)

// Run is one row of the runs table.
type Run struct {
	ID          string
	SubjectKey  string
	SubjectCode string
	SubjectName string
	Slot        string
	Commit      bool

	Status     string
	Phase      string
	TargetOpen *time.Time
	Reloads    int
	Committed  bool
	LastError  *string

	StartedAt  time.Time
	FinishedAt *time.Time
}

// Shot is a stored screenshot without its image bytes.
type Shot struct {
	ID      int64
	At      time.Time
	Caption string
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Start(ctx context.Context, run Run) error {
	return r.db.Exec(ctx, `
INSERT INTO runs(id,subject_key,subject_code,subject_name,slot,commit_enabled,status,phase,started_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run.ID, run.SubjectKey, run.SubjectCode, run.SubjectName, run.Slot, run.Commit, run.Status, run.Phase, run.StartedAt)
}

func (r *Repo) Finish(ctx context.Context, run Run) error {
	return r.db.Exec(ctx, `
UPDATE runs SET status=$2, phase=$3, target_open=$4, reloads=$5, committed=$6, last_error=$7, finished_at=$8
WHERE id=$1`,
		run.ID, run.Status, run.Phase, run.TargetOpen, run.Reloads, run.Committed, run.LastError, run.FinishedAt)
}

func (r *Repo) AppendEvent(ctx context.Context, runID string, e booking.Event) error {
	return r.db.Exec(ctx, `INSERT INTO run_events(run_id,at,phase,kind,message) VALUES ($1,$2,$3,$4,$5)`,
		runID, e.At, string(e.Phase), string(e.Kind), e.Message)
}

func (r *Repo) AppendScreenshot(ctx context.Context, runID string, s booking.Screenshot) error {
	return r.db.Exec(ctx, `INSERT INTO run_screenshots(run_id,at,caption,png) VALUES ($1,$2,$3,$4)`,
		runID, s.At, s.Caption, s.PNG)
}

const runColumns = `id,subject_key,subject_code,subject_name,slot,commit_enabled,status,phase,target_open,reloads,committed,last_error,started_at,finished_at`

func scanRun(row db.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.SubjectKey, &run.SubjectCode, &run.SubjectName, &run.Slot, &run.Commit,
		&run.Status, &run.Phase, &run.TargetOpen, &run.Reloads, &run.Committed, &run.LastError,
		&run.StartedAt, &run.FinishedAt)
	return run, err
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if err != nil {
		return Run{}, db.WrapNotFound(err)
	}
	return run, nil
}

func (r *Repo) Events(ctx context.Context, runID string) ([]booking.Event, error) {
	rows, err := r.db.Query(ctx, `SELECT at,phase,kind,message FROM run_events WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Event
	for rows.Next() {
		var e booking.Event
		var phase, kind string
		if err := rows.Scan(&e.At, &phase, &kind, &e.Message); err != nil {
			return nil, err
		}
		e.Phase, e.Kind = booking.Phase(phase), booking.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) Shots(ctx context.Context, runID string) ([]Shot, error) {
	rows, err := r.db.Query(ctx, `SELECT id,at,caption FROM run_screenshots WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shot
	for rows.Next() {
		var s Shot
		if err := rows.Scan(&s.ID, &s.At, &s.Caption); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) ShotPNG(ctx context.Context, runID string, shotID int64) ([]byte, error) {
	var png []byte
	err := r.db.QueryRow(ctx, `SELECT png FROM run_screenshots WHERE run_id=$1 AND id=$2`, runID, shotID).Scan(&png)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	return png, nil
}

// Summary is a one-line description for listings.
func (run Run) Summary() string {
	s := fmt.Sprintf("%s %s %s %s", run.StartedAt.Format("2006-01-02 15:04"), run.SubjectName, run.Slot, run.Status)
	if run.Committed {
		s += " (committed)"
	}
	if run.LastError != nil {
		s += ": " + *run.LastError
	}
	return s
}
