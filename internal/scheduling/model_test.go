package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+30), got)
	assert.Equal(t, "09:30", got.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	_, err = ParseTimeOfDay("not a time")
	assert.Error(t, err)
}

func TestTimeOfDayJSON(t *testing.T) {
	slot := TimeSlot{Start: TimeOfDay(8 * 60), End: TimeOfDay(9 * 60)}

	data, err := json.Marshal(slot)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"08:00","end":"09:00"}`, string(data))

	var decoded TimeSlot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, slot, decoded)
}

func TestOverlaps(t *testing.T) {
	nine := TimeOfDay(9 * 60)
	ten := TimeOfDay(10 * 60)
	eleven := TimeOfDay(11 * 60)
	nineThirty := TimeOfDay(9*60 + 30)
	tenThirty := TimeOfDay(10*60 + 30)

	// Touching intervals do not overlap.
	assert.False(t, Overlaps(nine, ten, ten, eleven))
	assert.False(t, Overlaps(ten, eleven, nine, ten))

	assert.True(t, Overlaps(nine, ten, nineThirty, tenThirty))
	assert.True(t, Overlaps(nineThirty, tenThirty, nine, ten))

	// Containment.
	assert.True(t, Overlaps(nine, eleven, nineThirty, ten))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusScheduled.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCancelled))

	assert.False(t, StatusScheduled.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusScheduled.CanTransitionTo(StatusScheduled))
	assert.False(t, StatusInProgress.CanTransitionTo(StatusScheduled))

	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		assert.True(t, terminal.Terminal())
		for _, next := range []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2025, 3, 10, 14, 35, 12, 99, time.UTC)
	day := DateOnly(ts)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, time.Monday, day.Weekday())
}
