package approval

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ApprovalLevel routes entries whose absolute total falls in [MinAmount, MaxAmount).
// An invalid MaxAmount means no upper bound.
type ApprovalLevel struct {
	ID        string
	Name      string
	MinAmount decimal.Decimal
	MaxAmount decimal.NullDecimal
	Order     int
}

// Contains reports whether amount falls in the level's range.
func (l ApprovalLevel) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(l.MinAmount) {
		return false
	}
	return !l.MaxAmount.Valid || amount.LessThan(l.MaxAmount.Decimal)
}

// LevelTable is an immutable, versioned snapshot of a company's approval levels.
type LevelTable struct {
	companyID string
	version   int
	levels    []ApprovalLevel
}

// NewLevelTable validates and freezes a set of levels.
func NewLevelTable(companyID string, version int, levels []ApprovalLevel) (LevelTable, error) {
	if len(levels) == 0 {
		return LevelTable{}, ErrNoLevels
	}
	byMin := append([]ApprovalLevel(nil), levels...)
	sort.Slice(byMin, func(i, j int) bool { return byMin[i].MinAmount.LessThan(byMin[j].MinAmount) })
	for i, level := range byMin {
		if level.MaxAmount.Valid && !level.MinAmount.LessThan(level.MaxAmount.Decimal) {
			return LevelTable{}, fmt.Errorf("%w: %s has an empty range", ErrOverlappingLevels, level.Name)
		}
		if i == 0 {
			continue
		}
		prev := byMin[i-1]
		if !prev.MaxAmount.Valid || level.MinAmount.LessThan(prev.MaxAmount.Decimal) {
			return LevelTable{}, fmt.Errorf("%w: %s and %s", ErrOverlappingLevels, prev.Name, level.Name)
		}
	}
	ordered := append([]ApprovalLevel(nil), levels...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return LevelTable{companyID: companyID, version: version, levels: ordered}, nil
}

// CompanyID returns the owner of the table.
func (t LevelTable) CompanyID() string { return t.companyID }

// Version returns the table version.
func (t LevelTable) Version() int { return t.version }

// Levels returns a copy of the levels ordered by Order.
func (t LevelTable) Levels() []ApprovalLevel {
	return append([]ApprovalLevel(nil), t.levels...)
}

// Select returns the level whose range contains amount. When none matches the highest
// level is returned and fallback is true.
func (t LevelTable) Select(amount decimal.Decimal) (level ApprovalLevel, fallback bool, err error) {
	if len(t.levels) == 0 {
		return ApprovalLevel{}, false, ErrNoLevels
	}
	for _, l := range t.levels {
		if l.Contains(amount) {
			return l, false, nil
		}
	}
	return t.levels[len(t.levels)-1], true, nil
}
