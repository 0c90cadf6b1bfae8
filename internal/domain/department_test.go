package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepartment_AcceptsWork(t *testing.T) {
	var missing *Department
	assert.False(t, missing.AcceptsWork())
	assert.False(t, (&Department{ID: "d1"}).AcceptsWork())
	assert.True(t, (&Department{ID: "d1", IsActive: true}).AcceptsWork())
}

func TestSlaConditions_MatchesDepartment(t *testing.T) {
	billing, support := "billing", "support"

	assert.True(t, SlaConditions{}.MatchesDepartment(nil))
	assert.True(t, SlaConditions{}.MatchesDepartment(&support))

	cond := SlaConditions{DepartmentIDs: []string{billing}}
	assert.True(t, cond.MatchesDepartment(&billing))
	assert.False(t, cond.MatchesDepartment(&support))
	assert.False(t, cond.MatchesDepartment(nil), "unfiled tickets miss department-scoped policies")
}
