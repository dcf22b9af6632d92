package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	IncidentType  string  `json:"incidentType" validate:"required"`
	ClaimedAmount float64 `json:"claimedAmount" validate:"gt=0"`
}

func TestFieldErrorsUsesJSONNames(t *testing.T) {
	err := New().Struct(sample{})
	require.Error(t, err)

	fields := FieldErrors(err)
	assert.Equal(t, "required", fields["incidentType"])
	assert.Equal(t, "gt", fields["claimedAmount"])
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, FieldErrors(errors.New("plain")))
	assert.NoError(t, New().Struct(sample{IncidentType: "hail", ClaimedAmount: 10}))
}
