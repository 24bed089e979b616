package dosing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from  LineStatus
		event string
		want  LineStatus
		ok    bool
	}{
		{StatusPending, EventBeginScan, StatusInProgress, true},
		{StatusInProgress, EventBeginScan, StatusInProgress, true},
		{StatusInProgress, EventConfirm, StatusDosed, true},
		{StatusInProgress, EventBypass, StatusBypassed, true},
		{StatusPending, EventConfirm, StatusPending, false},
		{StatusPending, EventBypass, StatusPending, false},
		{StatusDosed, EventBeginScan, StatusDosed, false},
		{StatusBypassed, EventConfirm, StatusBypassed, false},
		{StatusInProgress, "explode", StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.event, func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.event)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLineStatusTerminal(t *testing.T) {
	assert.True(t, StatusDosed.Terminal())
	assert.True(t, StatusBypassed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, LineStatus("Lost").Valid())
}
