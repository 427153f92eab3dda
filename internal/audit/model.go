package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action menamai langkah yang dicatat pada jejak audit dokumen.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionSubmit   Action = "SUBMIT"
	ActionApprove  Action = "APPROVE"
	ActionReject   Action = "REJECT"
	ActionWithdraw Action = "WITHDRAW"
	ActionPost     Action = "POST"
	ActionFanout   Action = "FANOUT"
)

// Status menandai apakah aksi berhasil.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Entry mewakili satu baris audit yang bersifat append-only.
type Entry struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	CompanyID  string          `json:"company_id"`
	LedgerID   string          `json:"ledger_id"`
	Action     Action          `json:"action"`
	Actor      string          `json:"actor"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`
	Message    string          `json:"message"`
	Meta       map[string]any  `json:"meta,omitempty"`
	At         time.Time       `json:"at"`
}

// TrailFilters menampung filter dasar untuk jejak audit.
type TrailFilters struct {
	Action   Action
	Page     int
	PageSize int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result membungkus hasil jejak audit dengan informasi paging.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
