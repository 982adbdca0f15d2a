package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAssessmentType(t *testing.T) {
	essay, err := ParseAssessmentType(" Essay ")
	require.NoError(t, err)
	require.Equal(t, AssessmentTypeEssay, essay)

	identification, err := ParseAssessmentType("identification")
	require.NoError(t, err)
	require.Equal(t, AssessmentTypeIdentification, identification)

	_, err = ParseAssessmentType("multiple-choice")
	require.ErrorIs(t, err, ErrUnknownAssessmentType)
}
