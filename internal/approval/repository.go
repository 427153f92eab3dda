package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// Repository reads workflow state and opens approval transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LevelTable(ctx context.Context, companyID string) (LevelTable, error)
	Workflow(ctx context.Context, id string) (WorkflowInstance, []ApprovalStep, error)
	PendingSteps(ctx context.Context, assignee string) ([]PendingRow, error)
	OverdueSteps(ctx context.Context, asOf time.Time) ([]PendingRow, error)
}

// TxRepository exposes the writes of one approval transition.
type TxRepository interface {
	LockEntry(ctx context.Context, id journals.DocumentID) (journals.JournalEntry, error)
	UpdateEntryStatus(ctx context.Context, id journals.DocumentID, status journals.Status) error
	InsertWorkflow(ctx context.Context, wf WorkflowInstance, steps []ApprovalStep) error
	LockWorkflow(ctx context.Context, id string) (WorkflowInstance, []ApprovalStep, error)
	UpdateWorkflow(ctx context.Context, wf WorkflowInstance) error
	UpdateSteps(ctx context.Context, steps []ApprovalStep) error
	AppendAudit(ctx context.Context, entry audit.Entry) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx approval repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx runs fn at ReadCommitted so an approver that waited on the workflow row lock
// reads the winner's decision and gets ErrAlreadyApproved rather than a serialization failure.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) LevelTable(ctx context.Context, companyID string) (LevelTable, error) {
	var version int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM approval_levels WHERE company_id=$1`, companyID).Scan(&version)
	if err != nil {
		return LevelTable{}, err
	}
	if version == 0 {
		return LevelTable{}, ErrNoLevels
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, min_amount, max_amount, ord
FROM approval_levels WHERE company_id=$1 AND version=$2 ORDER BY ord ASC`, companyID, version)
	if err != nil {
		return LevelTable{}, err
	}
	defer rows.Close()
	var levels []ApprovalLevel
	for rows.Next() {
		var l ApprovalLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.MinAmount, &l.MaxAmount, &l.Order); err != nil {
			return LevelTable{}, err
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return LevelTable{}, err
	}
	return NewLevelTable(companyID, version, levels)
}

func (r *repository) Workflow(ctx context.Context, id string) (WorkflowInstance, []ApprovalStep, error) {
	return loadWorkflow(ctx, r.pool, id, false)
}

const pendingSelect = `SELECT s.id, s.workflow_id, s.assignee, s.action, s.time_limit, s.acted_at, s.comments,
w.id, w.document_id, w.company_id, w.level_id, w.level_name, w.level_version, w.amount, w.status,
w.submitted_by, w.created_at, w.completed_at, COALESCE(w.completed_by,'')
FROM approval_steps s JOIN workflow_instances w ON w.id = s.workflow_id
WHERE s.action='PENDING' AND w.status='PENDING'`

func (r *repository) PendingSteps(ctx context.Context, assignee string) ([]PendingRow, error) {
	rows, err := r.pool.Query(ctx, pendingSelect+` AND s.assignee=$1 ORDER BY w.created_at ASC, w.id ASC`, assignee)
	if err != nil {
		return nil, err
	}
	return collectPending(rows)
}

func (r *repository) OverdueSteps(ctx context.Context, asOf time.Time) ([]PendingRow, error) {
	rows, err := r.pool.Query(ctx, pendingSelect+` AND s.time_limit < $1 ORDER BY s.time_limit ASC`, asOf)
	if err != nil {
		return nil, err
	}
	return collectPending(rows)
}

func collectPending(rows pgx.Rows) ([]PendingRow, error) {
	defer rows.Close()
	var out []PendingRow
	for rows.Next() {
		var (
			row    PendingRow
			action string
			status string
			docID  string
		)
		if err := rows.Scan(&row.Step.ID, &row.Step.WorkflowID, &row.Step.Assignee, &action, &row.Step.TimeLimit,
			&row.Step.ActedAt, &row.Step.Comments,
			&row.Workflow.ID, &docID, &row.Workflow.CompanyID, &row.Workflow.LevelID, &row.Workflow.LevelName,
			&row.Workflow.LevelVersion, &row.Workflow.Amount, &status, &row.Workflow.SubmittedBy,
			&row.Workflow.CreatedAt, &row.Workflow.CompletedAt, &row.Workflow.CompletedBy); err != nil {
			return nil, err
		}
		row.Step.Action = StepAction(action)
		row.Workflow.Status = WorkflowStatus(status)
		row.Workflow.DocumentID = journals.DocumentID(docID)
		out = append(out, row)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockEntry(ctx context.Context, id journals.DocumentID) (journals.JournalEntry, error) {
	return journals.LockEntry(ctx, r.tx, id)
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, id journals.DocumentID, status journals.Status) error {
	return journals.UpdateStatus(ctx, r.tx, id, status)
}

func (r *txRepository) InsertWorkflow(ctx context.Context, wf WorkflowInstance, steps []ApprovalStep) error {
	if _, err := r.tx.Exec(ctx, `INSERT INTO workflow_instances
(id, document_id, company_id, level_id, level_name, level_version, amount, status, submitted_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		wf.ID, string(wf.DocumentID), wf.CompanyID, wf.LevelID, wf.LevelName, wf.LevelVersion, wf.Amount,
		string(wf.Status), wf.SubmittedBy, wf.CreatedAt); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	for _, step := range steps {
		if _, err := r.tx.Exec(ctx, `INSERT INTO approval_steps
(id, workflow_id, assignee, action, time_limit, comments) VALUES ($1,$2,$3,$4,$5,$6)`,
			step.ID, step.WorkflowID, step.Assignee, string(step.Action), step.TimeLimit, step.Comments); err != nil {
			return fmt.Errorf("insert approval step: %w", err)
		}
	}
	return nil
}

func (r *txRepository) LockWorkflow(ctx context.Context, id string) (WorkflowInstance, []ApprovalStep, error) {
	return loadWorkflow(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateWorkflow(ctx context.Context, wf WorkflowInstance) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE workflow_instances SET status=$2, completed_at=$3, completed_by=NULLIF($4,'')
WHERE id=$1`, wf.ID, string(wf.Status), wf.CompletedAt, wf.CompletedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (r *txRepository) UpdateSteps(ctx context.Context, steps []ApprovalStep) error {
	for _, step := range steps {
		if _, err := r.tx.Exec(ctx, `UPDATE approval_steps SET action=$2, acted_at=$3, comments=$4 WHERE id=$1`,
			step.ID, string(step.Action), step.ActedAt, step.Comments); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) AppendAudit(ctx context.Context, entry audit.Entry) error {
	return audit.Insert(ctx, r.tx, entry)
}

func loadWorkflow(ctx context.Context, q db.Querier, id string, forUpdate bool) (WorkflowInstance, []ApprovalStep, error) {
	query := `SELECT id, document_id, company_id, level_id, level_name, level_version, amount, status,
submitted_by, created_at, completed_at, COALESCE(completed_by,'')
FROM workflow_instances WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		wf     WorkflowInstance
		docID  string
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(&wf.ID, &docID, &wf.CompanyID, &wf.LevelID, &wf.LevelName,
		&wf.LevelVersion, &wf.Amount, &status, &wf.SubmittedBy, &wf.CreatedAt, &wf.CompletedAt, &wf.CompletedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkflowInstance{}, nil, ErrWorkflowNotFound
		}
		return WorkflowInstance{}, nil, err
	}
	wf.DocumentID = journals.DocumentID(docID)
	wf.Status = WorkflowStatus(status)

	rows, err := q.Query(ctx, `SELECT id, workflow_id, assignee, action, time_limit, acted_at, comments
FROM approval_steps WHERE workflow_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return WorkflowInstance{}, nil, err
	}
	defer rows.Close()
	var steps []ApprovalStep
	for rows.Next() {
		var (
			step   ApprovalStep
			action string
		)
		if err := rows.Scan(&step.ID, &step.WorkflowID, &step.Assignee, &action, &step.TimeLimit, &step.ActedAt, &step.Comments); err != nil {
			return WorkflowInstance{}, nil, err
		}
		step.Action = StepAction(action)
		steps = append(steps, step)
	}
	return wf, steps, rows.Err()
}
