package periods

// Status enumerates fiscal period states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// State is the posting lock of one (company, fiscal year, period).
type State struct {
	CompanyID    string
	FiscalYear   int
	Period       int
	Status       Status
	AllowPosting bool
}

// Postable reports whether journal postings may land in the period.
func (s State) Postable() bool {
	return s.Status == StatusOpen && s.AllowPosting
}
