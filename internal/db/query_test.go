package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildTaskQuery_TaggedOnly(t *testing.T) {
	query, args := buildTaskQuery(`SELECT count(*)`, 7, Filter{})

	assert.Contains(t, query, "jobs_task.job_id = $1")
	assert.Contains(t, query, "jobs_task.tag IS NOT NULL")
	assert.NotContains(t, query, "is_gold")
	assert.NotContains(t, query, "created_at")
	assert.Equal(t, []any{int64(7)}, args)
}

func TestBuildTaskQuery_Untagged(t *testing.T) {
	query, _ := buildTaskQuery(`SELECT count(*)`, 7, Filter{Untagged: true})
	assert.NotContains(t, query, "tag IS NOT NULL")
}

func TestBuildTaskQuery_OnlyGold(t *testing.T) {
	query, _ := buildTaskQuery(`SELECT jobs_data.id`, 7, Filter{OnlyGold: true})
	assert.Contains(t, query, "jobs_task.is_gold = true")
}

func TestBuildTaskQuery_DateRangeIsParameterized(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)

	query, args := buildTaskQuery(`SELECT count(*)`, 7, Filter{DateRange: &DateRange{Start: start, End: end}})

	assert.Contains(t, query, "jobs_data.created_at >= $2")
	assert.Contains(t, query, "jobs_data.created_at < $3")
	assert.NotContains(t, query, "2022")
	assert.Equal(t, []any{int64(7), start, end}, args)
}

func TestBuildTaskQuery_OpenEndedRange(t *testing.T) {
	end := time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)

	query, args := buildTaskQuery(`SELECT count(*)`, 7, Filter{DateRange: &DateRange{End: end}})

	assert.NotContains(t, query, ">=")
	assert.Contains(t, query, "jobs_data.created_at < $2")
	assert.Equal(t, []any{int64(7), end}, args)
}

func TestErrors(t *testing.T) {
	assert.Contains(t, (&NotFoundError{JobID: 3}).Error(), "3")
	assert.Contains(t, (&ItemNotFoundError{JobID: 3, DataID: "conv-9"}).Error(), `"conv-9"`)

	cause := assert.AnError
	err := &ConnectionError{Op: "connect", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connect")
}
