// Package accounting is the boundary of the GL core: it coordinates approval, posting and
// parallel distribution and reports every call as a Result instead of an error.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/parallel"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/approval"
	"github.com/odyssey-erp/odyssey-gl/internal/audit"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/lock"
)

// Result is what every operation returns. Payload carries the structured detail.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Approve outcomes.
const (
	OutcomeApproved              = "APPROVED"
	OutcomeApprovedAndPosted     = "APPROVED_AND_POSTED"
	OutcomeApprovedPostingFailed = "APPROVED_POSTING_FAILED"
)

// ApprovalOutcome is the payload of Approve.
type ApprovalOutcome struct {
	Outcome      string                    `json:"outcome"`
	Workflow     approval.WorkflowInstance `json:"workflow"`
	Posting      *posting.Result           `json:"posting,omitempty"`
	PostingError string                    `json:"posting_error,omitempty"`
	PostingCode  string                    `json:"posting_code,omitempty"`
	Fanout       *parallel.Report          `json:"fanout,omitempty"`
	FanoutError  string                    `json:"fanout_error,omitempty"`
}

// BatchItem is one document of a PostBatch payload.
type BatchItem struct {
	DocumentID journals.DocumentID `json:"document_id"`
	Success    bool                `json:"success"`
	Code       string              `json:"code,omitempty"`
	Error      string              `json:"error,omitempty"`
	Result     *posting.Result     `json:"result,omitempty"`
}

// BatchReport is the payload of PostBatch.
type BatchReport struct {
	Posted int         `json:"posted"`
	Failed int         `json:"failed"`
	Items  []BatchItem `json:"items"`
}

// Options tunes the coordinator.
type Options struct {
	// DeferPosting leaves approved entries APPROVED instead of posting them right away.
	DeferPosting bool
}

// Deps groups the collaborators of the coordinator.
type Deps struct {
	Journals  *journals.Service
	Approvals *approval.Service
	Poster    *posting.Engine
	Fanout    *parallel.Engine
	Balances  balances.Store
	Audit     *audit.Service
	Locker    lock.Locker
}

// Service coordinates the GL operations.
type Service struct {
	journals  *journals.Service
	approvals *approval.Service
	poster    *posting.Engine
	fanout    *parallel.Engine
	balances  balances.Store
	audit     *audit.Service
	locker    lock.Locker
	opts      Options
	logger    *slog.Logger
}

// NewService wires the coordinator. A nil locker falls back to an in-process one.
func NewService(deps Deps, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Service{
		journals:  deps.Journals,
		approvals: deps.Approvals,
		poster:    deps.Poster,
		fanout:    deps.Fanout,
		balances:  deps.Balances,
		audit:     deps.Audit,
		locker:    locker,
		opts:      opts,
		logger:    logger,
	}
}

// CreateDraft stages a new journal entry.
func (s *Service) CreateDraft(ctx context.Context, in journals.CreateDraftInput) Result {
	return s.run(ctx, "create_draft", func(ctx context.Context) (string, any, error) {
		entry, err := s.journals.CreateDraft(ctx, in)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("draft %s created", entry.ID), entry, nil
	})
}

// Submit routes a draft to its approvers.
func (s *Service) Submit(ctx context.Context, documentID, submitter string) Result {
	return s.run(ctx, "submit", func(ctx context.Context) (string, any, error) {
		id := journals.DocumentID(documentID)
		var wf approval.WorkflowInstance
		err := s.withDocument(ctx, id, func(ctx context.Context) error {
			var err error
			wf, err = s.approvals.Submit(ctx, id, shared.User(submitter))
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("submitted to %s", wf.LevelName), wf, nil
	})
}

// Approve records the decision, then posts the entry as the approver and fans it out.
// A posting failure leaves the approval in place and is reported in the payload.
func (s *Service) Approve(ctx context.Context, workflowID, approver, comments string) Result {
	return s.run(ctx, "approve", func(ctx context.Context) (string, any, error) {
		current, _, err := s.approvals.Lookup(ctx, workflowID)
		if err != nil {
			return "", nil, err
		}
		var out ApprovalOutcome
		err = s.withDocument(ctx, current.DocumentID, func(ctx context.Context) error {
			wf, err := s.approvals.Approve(ctx, workflowID, shared.User(approver), comments)
			if err != nil {
				return err
			}
			out = ApprovalOutcome{Outcome: OutcomeApproved, Workflow: wf}
			if s.opts.DeferPosting {
				return nil
			}
			res, err := s.poster.Post(ctx, posting.Request{DocumentID: wf.DocumentID, Poster: shared.User(approver)})
			if err != nil {
				out.Outcome = OutcomeApprovedPostingFailed
				out.PostingError = err.Error()
				out.PostingCode = Code(err)
				return nil
			}
			out.Outcome = OutcomeApprovedAndPosted
			out.Posting = &res
			report, err := s.fanout.Fanout(ctx, wf.DocumentID)
			if err != nil {
				out.FanoutError = err.Error()
				s.logger.Warn("fanout after approval failed",
					slog.String("document", string(wf.DocumentID)),
					slog.Any("error", err))
				return nil
			}
			out.Fanout = &report
			return nil
		})
		if err != nil {
			return "", nil, err
		}
		return approvalMessage(out), out, nil
	})
}

func approvalMessage(out ApprovalOutcome) string {
	switch out.Outcome {
	case OutcomeApprovedAndPosted:
		if out.Fanout != nil {
			return fmt.Sprintf("approved and posted; %d of %d parallel ledgers posted", out.Fanout.SuccessCount, out.Fanout.LedgerCount)
		}
		return "approved and posted; parallel distribution failed"
	case OutcomeApprovedPostingFailed:
		return "approved; posting failed: " + out.PostingError
	default:
		return "approved"
	}
}

// Reject closes the workflow with a reason.
func (s *Service) Reject(ctx context.Context, workflowID, approver, reason string) Result {
	return s.run(ctx, "reject", func(ctx context.Context) (string, any, error) {
		current, _, err := s.approvals.Lookup(ctx, workflowID)
		if err != nil {
			return "", nil, err
		}
		var wf approval.WorkflowInstance
		err = s.withDocument(ctx, current.DocumentID, func(ctx context.Context) error {
			wf, err = s.approvals.Reject(ctx, workflowID, shared.User(approver), reason)
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return "rejected", wf, nil
	})
}

// Withdraw pulls a pending entry back to draft.
func (s *Service) Withdraw(ctx context.Context, workflowID, actor string) Result {
	return s.run(ctx, "withdraw", func(ctx context.Context) (string, any, error) {
		current, _, err := s.approvals.Lookup(ctx, workflowID)
		if err != nil {
			return "", nil, err
		}
		var wf approval.WorkflowInstance
		err = s.withDocument(ctx, current.DocumentID, func(ctx context.Context) error {
			wf, err = s.approvals.Withdraw(ctx, workflowID, shared.User(actor))
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return "withdrawn", wf, nil
	})
}

// Post writes an approved entry to its ledger.
func (s *Service) Post(ctx context.Context, documentID, poster string) Result {
	return s.run(ctx, "post", func(ctx context.Context) (string, any, error) {
		id := journals.DocumentID(documentID)
		var res posting.Result
		err := s.withDocument(ctx, id, func(ctx context.Context) error {
			var err error
			res, err = s.poster.Post(ctx, posting.Request{DocumentID: id, Poster: shared.User(poster)})
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("posted %d lines to %s", res.LinesPosted, res.LedgerID), res, nil
	})
}

// PostBatch posts each document in order and never stops on a failed one.
func (s *Service) PostBatch(ctx context.Context, documentIDs []string, poster string) Result {
	return s.run(ctx, "post_batch", func(ctx context.Context) (string, any, error) {
		report := BatchReport{Items: make([]BatchItem, 0, len(documentIDs))}
		for _, raw := range documentIDs {
			id := journals.DocumentID(raw)
			var res posting.Result
			err := s.withDocument(ctx, id, func(ctx context.Context) error {
				var err error
				res, err = s.poster.Post(ctx, posting.Request{DocumentID: id, Poster: shared.User(poster)})
				return err
			})
			item := BatchItem{DocumentID: id, Success: err == nil}
			if err != nil {
				item.Code = Code(err)
				item.Error = err.Error()
				report.Failed++
			} else {
				r := res
				item.Result = &r
				report.Posted++
			}
			report.Items = append(report.Items, item)
		}
		msg := fmt.Sprintf("%d posted, %d failed", report.Posted, report.Failed)
		if report.Failed > 0 && report.Posted == 0 {
			return msg, report, fmt.Errorf("%w: every document failed", shared.ErrValidation)
		}
		return msg, report, nil
	})
}

// Fanout distributes a posted document to the parallel ledgers.
func (s *Service) Fanout(ctx context.Context, documentID string) Result {
	return s.run(ctx, "fanout", func(ctx context.Context) (string, any, error) {
		id := journals.DocumentID(documentID)
		var report parallel.Report
		err := s.withDocument(ctx, id, func(ctx context.Context) error {
			var err error
			report, err = s.fanout.Fanout(ctx, id)
			return err
		})
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d of %d parallel ledgers posted", report.SuccessCount, report.LedgerCount), report, nil
	})
}

// PendingApprovalsFor lists the user's open approval steps.
func (s *Service) PendingApprovalsFor(ctx context.Context, user string) Result {
	return s.run(ctx, "pending", func(ctx context.Context) (string, any, error) {
		items, err := s.approvals.PendingFor(ctx, user)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d pending", len(items)), items, nil
	})
}

// BalanceOf returns one balance row.
func (s *Service) BalanceOf(ctx context.Context, key balances.Key) Result {
	return s.run(ctx, "balance", func(ctx context.Context) (string, any, error) {
		row, err := s.balances.Get(ctx, key)
		if err != nil {
			return "", nil, err
		}
		return key.String(), row, nil
	})
}

// BalanceRange returns the rows of one account across periods.
func (s *Service) BalanceRange(ctx context.Context, companyID, ledgerID, accountID string, year, fromPeriod, toPeriod int) Result {
	return s.run(ctx, "balance_range", func(ctx context.Context) (string, any, error) {
		if fromPeriod > toPeriod {
			return "", nil, fmt.Errorf("%w: period range %d-%d", shared.ErrValidation, fromPeriod, toPeriod)
		}
		rows, err := s.balances.Range(ctx, companyID, ledgerID, accountID, year, fromPeriod, toPeriod)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d periods", len(rows)), rows, nil
	})
}

// TrialBalance groups one period of a ledger into a trial balance.
func (s *Service) TrialBalance(ctx context.Context, companyID, ledgerID string, year, period int) Result {
	return s.run(ctx, "trial_balance", func(ctx context.Context) (string, any, error) {
		rows, err := s.balances.Period(ctx, companyID, ledgerID, year, period)
		if err != nil {
			return "", nil, err
		}
		tb := balances.BuildTrialBalance(rows)
		return fmt.Sprintf("difference %s", tb.Difference().StringFixed(2)), tb, nil
	})
}

// AuditTrailFor pages through the audit rows of a document.
func (s *Service) AuditTrailFor(ctx context.Context, documentID string, filters audit.TrailFilters) Result {
	return s.run(ctx, "audit_trail", func(ctx context.Context) (string, any, error) {
		res, err := s.audit.TrailFor(ctx, documentID, filters)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d rows", len(res.Rows)), res, nil
	})
}

// ExportAuditTrail returns every audit row of a document.
func (s *Service) ExportAuditTrail(ctx context.Context, documentID string) ([]audit.Entry, error) {
	return s.audit.Export(ctx, documentID)
}

// ParallelStatusOf reports the recorded fanout state of a document.
func (s *Service) ParallelStatusOf(ctx context.Context, documentID string) Result {
	return s.run(ctx, "parallel_status", func(ctx context.Context) (string, any, error) {
		report, err := s.fanout.Status(ctx, journals.DocumentID(documentID))
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d of %d parallel ledgers posted", report.SuccessCount, report.LedgerCount), report, nil
	})
}

// Journal returns an entry with its lines.
func (s *Service) Journal(ctx context.Context, documentID string) Result {
	return s.run(ctx, "journal", func(ctx context.Context) (string, any, error) {
		entry, err := s.journals.Get(ctx, journals.DocumentID(documentID))
		if err != nil {
			return "", nil, err
		}
		return string(entry.Status), entry, nil
	})
}

func (s *Service) withDocument(ctx context.Context, id journals.DocumentID, fn func(context.Context) error) error {
	release, err := s.locker.Acquire(ctx, lock.DocumentKey(string(id)))
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// run converts errors and panics into failure results.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, any, error)) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("operation panicked",
				slog.String("op", op),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			res = Result{Success: false, Message: "internal error", Code: CodeInternal}
		}
	}()
	msg, payload, err := fn(ctx)
	if err != nil {
		code := Code(err)
		if code == CodeInternal && !errors.Is(err, context.Canceled) {
			s.logger.Error("operation failed", slog.String("op", op), slog.Any("error", err))
		}
		return Result{Success: false, Message: err.Error(), Code: code, Payload: payload}
	}
	return Result{Success: true, Message: msg, Payload: payload}
}
