package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	nc, err := NewNATSClient(Config{})
	require.NoError(t, err)

	assert.False(t, nc.Enabled())
	assert.ErrorIs(t, nc.Publish("booking.created", map[string]int{"court_id": 1}), ErrDisabled)

	_, err = nc.SubscribeQueue("booking.created", "consumers", nil)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, nc.Close())
}
