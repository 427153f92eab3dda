package parallel

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledgers"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/fx"
)

// GroupLookup resolves the account group of an account.
type GroupLookup func(ctx context.Context, accountID string) (string, error)

// RateLookup returns the translation rate into the target currency. It is called at most
// once, and only when a line survives the rules.
type RateLookup func(ctx context.Context) (decimal.Decimal, error)

// derivation is the ledger-scoped copy of a source entry plus its counters.
type derivation struct {
	entry        journals.JournalEntry
	translations int
	rewrites     int
	// residual is the rounding difference booked to keep translated lines balanced.
	residual decimal.Decimal
}

// derive builds the target ledger's lines from the source lines. Lines tagged to the target
// are copied without rules, lines tagged to another ledger are skipped.
func derive(ctx context.Context, source journals.JournalEntry, leading, target ledgers.Ledger, rules ledgers.RuleSet,
	groups GroupLookup, lookup RateLookup, tolerance decimal.Decimal, now time.Time) (derivation, error) {
	currency := target.Currency
	if currency == "" {
		currency = source.Currency
	}
	out := derivation{entry: journals.JournalEntry{
		ID:          journals.DerivedDocumentID(source.ID, target.ID),
		CompanyID:   source.CompanyID,
		DocNumber:   source.DocNumber,
		LedgerID:    target.ID,
		SourceID:    source.ID,
		Currency:    currency,
		FiscalYear:  source.FiscalYear,
		Period:      source.Period,
		PostingDate: source.PostingDate,
		Status:      journals.StatusApproved,
		CreatedBy:   source.CreatedBy,
		CreatedAt:   now,
	}}
	translate := currency != source.Currency
	var (
		rate               decimal.Decimal
		rateLoaded         bool
		sourceDr, sourceCr decimal.Decimal
	)

	for _, line := range source.Lines {
		derived := line
		derived.LedgerID = ""
		switch line.LedgerID {
		case "", leading.ID:
			group := ""
			if rules.NeedsGroups() {
				g, err := groups(ctx, line.AccountID)
				if err != nil {
					return derivation{}, err
				}
				group = g
			}
			rule := rules.Match(line.AccountID, group)
			if !rule.Implicit() {
				out.rewrites++
			}
			switch rule.Action {
			case ledgers.ActionExclude:
				continue
			case ledgers.ActionAdjust:
				derived.Debit = fx.Round(line.Debit.Mul(rule.Factor), source.Currency)
				derived.Credit = fx.Round(line.Credit.Mul(rule.Factor), source.Currency)
			}
			derived.AccountID = rule.TargetAccountFor(line.AccountID)
		case target.ID:
		default:
			continue
		}

		sourceDr = sourceDr.Add(derived.Debit)
		sourceCr = sourceCr.Add(derived.Credit)
		if translate {
			if !rateLoaded {
				r, err := lookup(ctx)
				if err != nil {
					return derivation{}, err
				}
				rate, rateLoaded = r, true
			}
			derived.Debit = fx.Convert(derived.Debit, rate, currency)
			derived.Credit = fx.Convert(derived.Credit, rate, currency)
			derived.Description = fmt.Sprintf("%s [%s->%s @ %s]", line.Description, source.Currency, currency, rate.String())
			out.translations++
		}
		derived.Currency = currency
		derived.LineNo = len(out.entry.Lines) + 1
		out.entry.Lines = append(out.entry.Lines, derived)
	}

	if len(out.entry.Lines) == 0 {
		return derivation{}, fmt.Errorf("%w: %s", shared.ErrNoLinesGenerated, target.ID)
	}
	if !shared.Balanced(sourceDr, sourceCr, tolerance) {
		return derivation{}, fmt.Errorf("%w: %s debit %s credit %s", shared.ErrDerivationUnbalanced, target.ID,
			sourceDr.StringFixed(2), sourceCr.StringFixed(2))
	}
	if translate {
		out.residual = allocateResidual(out.entry.Lines)
	}
	debit, credit := journals.Totals(out.entry.Lines)
	if !shared.Balanced(debit, credit, tolerance) {
		return derivation{}, fmt.Errorf("%w: %s debit %s credit %s", shared.ErrDerivationUnbalanced, target.ID,
			debit.StringFixed(2), credit.StringFixed(2))
	}
	return out, nil
}

// allocateResidual books the difference left by rounding each translated line to the
// largest line on the lighter side and returns the amount booked.
func allocateResidual(lines []journals.JournalLine) decimal.Decimal {
	debit, credit := journals.Totals(lines)
	diff := debit.Sub(credit)
	if diff.IsZero() {
		return decimal.Zero
	}
	creditSide := diff.IsPositive()
	target := -1
	for i, l := range lines {
		amount := l.Debit
		if creditSide {
			amount = l.Credit
		}
		if !amount.IsPositive() {
			continue
		}
		if target < 0 || amount.GreaterThan(sideAmount(lines[target], creditSide)) {
			target = i
		}
	}
	if target < 0 {
		return decimal.Zero
	}
	if creditSide {
		lines[target].Credit = lines[target].Credit.Add(diff)
	} else {
		lines[target].Debit = lines[target].Debit.Add(diff.Neg())
	}
	return diff.Abs()
}

func sideAmount(l journals.JournalLine, credit bool) decimal.Decimal {
	if credit {
		return l.Credit
	}
	return l.Debit
}
