package approval

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type directory struct {
	pool *pgxpool.Pool
}

// NewDirectory returns the approver lookup backed by level_approvers.
func NewDirectory(pool *pgxpool.Pool) ApproverDirectory {
	return &directory{pool: pool}
}

func (d *directory) ApproversForLevel(ctx context.Context, companyID, levelID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT user_id FROM level_approvers
WHERE company_id=$1 AND level_id=$2 AND active ORDER BY user_id ASC`, companyID, levelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
