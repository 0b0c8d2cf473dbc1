package db

import "fmt"

const taskJoin = ` FROM jobs_task INNER JOIN jobs_data ON jobs_data.id = jobs_task.data_id`

// buildTaskQuery appends the job and filter conditions to selectClause.
// Every caller-supplied value is passed as a $n argument.
func buildTaskQuery(selectClause string, jobID int64, filter Filter) (string, []any) {
	query := selectClause + taskJoin + ` WHERE jobs_task.job_id = $1`
	args := []any{jobID}
	argNum := 2

	if !filter.Untagged {
		query += ` AND jobs_task.tag IS NOT NULL`
	}
	if filter.OnlyGold {
		query += ` AND jobs_task.is_gold = true`
	}
	if r := filter.DateRange; r != nil {
		if !r.Start.IsZero() {
			query += fmt.Sprintf(" AND jobs_data.created_at >= $%d", argNum)
			args = append(args, r.Start)
			argNum++
		}
		if !r.End.IsZero() {
			query += fmt.Sprintf(" AND jobs_data.created_at < $%d", argNum)
			args = append(args, r.End)
		}
	}

	return query, args
}
