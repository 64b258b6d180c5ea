package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoliticianPatch_Fields(t *testing.T) {
	t.Parallel()

	bio := "前立法委員"
	year := 1970
	p := PoliticianPatch{Bio: &bio, BirthYear: &year, Experience: []string{"市議員"}}
	assert.Equal(t, []string{"bio", "experience", "birth_year"}, p.Fields())
	assert.Empty(t, PoliticianPatch{}.Fields())
}

func TestCandidateStatus_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, CandidateRumored.Valid())
	assert.True(t, CandidateDefeated.Valid())
	assert.False(t, CandidateStatus("maybe").Valid())
}
