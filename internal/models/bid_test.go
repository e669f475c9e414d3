package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextBidStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    BidStatus
		action  BidAction
		want    BidStatus
		allowed bool
	}{
		{"accept pending", BidPending, ActionAccept, BidAccepted, true},
		{"reject pending", BidPending, ActionReject, BidRejected, true},
		{"counter pending", BidPending, ActionCounter, BidCountered, true},
		{"withdraw pending", BidPending, ActionWithdraw, BidWithdrawn, true},
		{"expire pending", BidPending, ActionExpire, BidExpired, true},
		{"resubmit countered", BidCountered, ActionSubmit, BidPending, true},
		{"withdraw countered", BidCountered, ActionWithdraw, BidWithdrawn, true},
		{"expire countered", BidCountered, ActionExpire, BidExpired, true},
		{"accept countered", BidCountered, ActionAccept, "", false},
		{"counter countered", BidCountered, ActionCounter, "", false},
		{"reject countered", BidCountered, ActionReject, "", false},
		{"accept accepted", BidAccepted, ActionAccept, "", false},
		{"reject rejected", BidRejected, ActionReject, "", false},
		{"withdraw expired", BidExpired, ActionWithdraw, "", false},
		{"counter withdrawn", BidWithdrawn, ActionCounter, "", false},
		{"submit pending", BidPending, ActionSubmit, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextBidStatus(tt.from, tt.action)
			require.Equal(t, tt.allowed, ok)
			if tt.allowed {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestBidStatusTerminal(t *testing.T) {
	assert.False(t, BidPending.Terminal())
	assert.False(t, BidCountered.Terminal())
	assert.True(t, BidAccepted.Terminal())
	assert.True(t, BidRejected.Terminal())
	assert.True(t, BidExpired.Terminal())
	assert.True(t, BidWithdrawn.Terminal())
}

func TestBidStatusOpen(t *testing.T) {
	assert.True(t, BidPending.Open())
	assert.True(t, BidCountered.Open())
	assert.False(t, BidAccepted.Open())
	assert.False(t, BidRejected.Open())
	assert.False(t, BidExpired.Open())
	assert.False(t, BidWithdrawn.Open())
}

func TestParseBidStatus(t *testing.T) {
	for _, valid := range []string{"PENDING", "ACCEPTED", "REJECTED", "COUNTERED", "EXPIRED", "WITHDRAWN"} {
		st, err := ParseBidStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, BidStatus(valid), st)
	}

	_, err := ParseBidStatus("pending")
	assert.Error(t, err)
	_, err = ParseBidStatus("OPEN")
	assert.Error(t, err)
}
