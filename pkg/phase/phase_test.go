package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := map[string]Phase{
		"Intake":            Intake,
		"EARLY-REVIEW":      EarlyReview,
		"Submission Review": SubmissionReview,
		" commit_review ":   CommitReview,
		"transition":        Transition,
		"Won":               Won,
		"closed-lost":       Lost,
		"all":               All,
		"ALL":               All,
		"*":                 All,
	}
	for in, want := range tests {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("negotiation")
	assert.Error(t, err)
	_, err = Parse("")
	assert.Error(t, err)
}

func TestOrdering(t *testing.T) {
	seq := Sequence()
	require.Len(t, seq, 5)
	for i, p := range seq {
		assert.Equal(t, i, p.Index())
		assert.False(t, p.IsTerminal())
	}
	assert.Equal(t, 5, Won.Index())
	assert.Equal(t, 5, Lost.Index())
	assert.Equal(t, -1, All.Index())
	assert.Equal(t, -1, Phase("bogus").Index())

	assert.True(t, Intake.Before(CommitReview))
	assert.False(t, CommitReview.Before(Intake))
	assert.False(t, All.Before(Intake))
	assert.True(t, Transition.Before(Won))

	assert.True(t, CommitReview.IsBranch())
	assert.False(t, Transition.IsBranch())
	assert.False(t, Won.IsBranch())
	assert.True(t, Lost.IsTerminal())
	assert.False(t, All.Valid())
}

func TestSequence_ReturnsCopy(t *testing.T) {
	seq := Sequence()
	seq[0] = Won
	assert.Equal(t, Intake, Sequence()[0])
}

func TestMatches(t *testing.T) {
	assert.True(t, All.Matches(Intake))
	assert.True(t, Intake.Matches(Intake))
	assert.False(t, Intake.Matches(EarlyReview))
}

func TestUnmarshalText(t *testing.T) {
	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("Early Review")))
	assert.Equal(t, EarlyReview, p)
	assert.Error(t, p.UnmarshalText([]byte("later")))
}
