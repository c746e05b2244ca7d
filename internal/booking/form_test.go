package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roombook/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateRooms, true},
		{StateIdle, StateConfirm, false},
		{StateRooms, StateDate, true},
		{StateDate, StateStart, true},
		{StateStart, StateEnd, true},
		{StateEnd, StateConfirm, true},
		{StateConfirm, StateComplete, true},
		{StateConfirm, StateDate, true},
		{StateComplete, StateConfirm, false},
		{StateCancelled, StateIdle, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestForm_RegularFlow(t *testing.T) {
	f := NewForm(model.KindRegular)
	assert.Equal(t, StateIdle, f.State())

	f.SetRooms([]int64{1, 2}, nil)
	assert.Equal(t, StateDate, f.State())

	f.SetDate(date(2024, 6, 1))
	assert.Equal(t, StateStart, f.State())

	f.SetStart(13)
	f.SetEnd(16)
	assert.Equal(t, StateConfirm, f.State())

	sel, ok := f.Selection().(Regular)
	require.True(t, ok)
	require.NoError(t, sel.Validate())
	assert.Equal(t, 13, *sel.Start)
	assert.Equal(t, 16, *sel.End)

	assert.True(t, f.Complete())
	assert.Equal(t, StateComplete, f.State())
}

func TestForm_DateChangeClearsHours(t *testing.T) {
	f := NewForm(model.KindRegular)
	f.SetRooms([]int64{1}, nil)
	f.SetDate(date(2024, 6, 1))
	f.SetStart(9)
	f.SetEnd(11)

	f.SetDate(date(2024, 6, 2))

	sel := f.Selection().(Regular)
	assert.Nil(t, sel.Start)
	assert.Nil(t, sel.End)
	assert.Equal(t, StateStart, f.State())
	assert.Nil(t, f.Start())
}

func TestForm_LaterStartClearsEnd(t *testing.T) {
	f := NewForm(model.KindRegular)
	f.SetRooms([]int64{1}, nil)
	f.SetDate(date(2024, 6, 1))
	f.SetStart(9)
	f.SetEnd(11)

	f.SetStart(10)
	assert.Equal(t, 11, *f.Selection().(Regular).End)

	f.SetStart(11)
	assert.Nil(t, f.Selection().(Regular).End)
	assert.Equal(t, StateEnd, f.State())
}

func TestForm_CampDefaultsEndDate(t *testing.T) {
	f := NewForm(model.KindCamp)
	f.SetRooms([]int64{1}, nil)
	f.SetDate(date(2024, 7, 1))
	assert.Equal(t, StateEndDate, f.State())

	sel := f.Selection().(Camp)
	assert.Equal(t, date(2024, 7, 1), sel.EndDate)

	f.SetEndDate(date(2024, 6, 30))
	f.SetStart(9)
	f.SetEnd(17)

	err := f.Selection().Validate()
	require.Error(t, err)
	assert.Equal(t, ReasonEndDateBeforeStartDate, err.Error())
}

func TestForm_Cancel(t *testing.T) {
	f := NewForm(model.KindRegular)
	assert.False(t, f.Cancel())

	f.SetRooms([]int64{1}, nil)
	assert.True(t, f.Cancel())
	assert.Equal(t, StateCancelled, f.State())
}
