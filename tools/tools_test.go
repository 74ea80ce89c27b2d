package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownTool(t *testing.T) {
	table := DentalTable()

	_, err := table.Dispatch(context.Background(), "open_pod_bay_doors", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestDispatchMissingRequiredArg(t *testing.T) {
	table := DentalTable()

	_, err := table.Dispatch(context.Background(), "get_patient_info", map[string]any{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), "patient_id")
}

func TestDispatchRunFailureIsNotUnknownTool(t *testing.T) {
	boom := errors.New("backend unavailable")
	table := NewTable(Tool{
		Function: Function{Name: "flaky", Parameters: Schema{Type: "object"}},
		Run: func(context.Context, map[string]any) (any, error) {
			return nil, boom
		},
	})

	_, err := table.Dispatch(context.Background(), "flaky", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnknownTool)
}

func TestAvailableSlotsFixture(t *testing.T) {
	table := DentalTable()

	result, err := table.Dispatch(context.Background(), "get_available_slots", map[string]any{
		"date":         "2025-03-18",
		"service_type": "Cleaning",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:30", "14:00"}, result)
}

func TestSpecsShape(t *testing.T) {
	specs := DentalTable().Specs()

	require.Len(t, specs, 4)
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		assert.Equal(t, "function", s.Type)
		assert.Equal(t, "object", s.Function.Parameters.Type)
		names = append(names, s.Function.Name)
	}
	assert.Equal(t, []string{
		"get_patient_info",
		"get_available_slots",
		"schedule_appointment",
		"get_treatment_history",
	}, names)
}

func TestNewTableDuplicatePanics(t *testing.T) {
	tool := Tool{
		Function: Function{Name: "dup"},
		Run:      func(context.Context, map[string]any) (any, error) { return nil, nil },
	}
	assert.Panics(t, func() { NewTable(tool, tool) })
}
