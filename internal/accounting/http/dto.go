package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/journals"
)

const postingDateLayout = "2006-01-02"

type lineRequest struct {
	AccountID   string            `json:"account_id" validate:"required,max=20"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Description string            `json:"description" validate:"max=255"`
	Dimensions  map[string]string `json:"dimensions"`
	LedgerID    string            `json:"ledger_id" validate:"max=8"`
}

type createDraftRequest struct {
	CompanyID   string        `json:"company_id" validate:"required,max=8"`
	DocNumber   string        `json:"doc_number" validate:"required,max=32"`
	LedgerID    string        `json:"ledger_id" validate:"max=8"`
	Currency    string        `json:"currency" validate:"omitempty,len=3,uppercase"`
	FiscalYear  int           `json:"fiscal_year" validate:"required,gte=1900,lte=9999"`
	Period      int           `json:"period" validate:"required,min=1,max=16"`
	PostingDate string        `json:"posting_date" validate:"required,datetime=2006-01-02"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (req createDraftRequest) toInput(actor string) (journals.CreateDraftInput, error) {
	date, err := time.Parse(postingDateLayout, req.PostingDate)
	if err != nil {
		return journals.CreateDraftInput{}, err
	}
	in := journals.CreateDraftInput{
		CompanyID:   strings.TrimSpace(req.CompanyID),
		DocNumber:   strings.TrimSpace(req.DocNumber),
		LedgerID:    strings.TrimSpace(req.LedgerID),
		Currency:    req.Currency,
		FiscalYear:  req.FiscalYear,
		Period:      req.Period,
		PostingDate: date,
		CreatedBy:   actor,
		Lines:       make([]journals.LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, journals.LineInput{
			AccountID:   strings.TrimSpace(line.AccountID),
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			Dimensions:  line.Dimensions,
			LedgerID:    strings.TrimSpace(line.LedgerID),
		})
	}
	return in, nil
}

type approveRequest struct {
	Comments string `json:"comments" validate:"max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type postBatchRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,max=500,dive,required"`
}

// describeValidation flattens validator errors into one readable line.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
