package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentwa/wabridge/config"
)

func TestReconnectDelayGrowsWithAttempts(t *testing.T) {
	// With ±25% jitter the delay for attempt n lies inside
	// [0.75, 1.25] * min(ceiling, base * factor^(n-1)).
	for attempt := 1; attempt <= config.ReconnectAttempts; attempt++ {
		expected := float64(config.ReconnectBase)
		for i := 1; i < attempt; i++ {
			expected *= config.ReconnectFactor
		}
		if expected > float64(config.ReconnectCeiling) {
			expected = float64(config.ReconnectCeiling)
		}

		for i := 0; i < 50; i++ {
			d := ReconnectDelay(attempt, "")
			assert.GreaterOrEqual(t, d, time.Duration(expected*0.75), "attempt %d", attempt)
			assert.LessOrEqual(t, d, time.Duration(expected*1.25), "attempt %d", attempt)
			assert.GreaterOrEqual(t, d, config.ReconnectFloor)
		}
	}
}

func TestReconnectDelayCeiling(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := ReconnectDelay(100, "")
		assert.LessOrEqual(t, d, time.Duration(float64(config.ReconnectCeiling)*1.25))
	}
}

func TestReconnectDelayStreamRestartCode(t *testing.T) {
	// Code 515 asks for an immediate restart: fixed one second, no jitter.
	for i := 0; i < 10; i++ {
		assert.Equal(t, time.Second, ReconnectDelay(3, "515"))
	}
}

func TestReconnectDelayZeroAttemptTreatedAsFirst(t *testing.T) {
	d := ReconnectDelay(0, "")
	assert.GreaterOrEqual(t, d, time.Duration(float64(config.ReconnectBase)*0.75))
	assert.LessOrEqual(t, d, time.Duration(float64(config.ReconnectBase)*1.25))
}

func TestSupervisorInitialState(t *testing.T) {
	s := NewSupervisor(nil, nil, nil, nil)
	state, qr, account := s.Status()
	assert.Equal(t, StateDisconnected, state)
	assert.Empty(t, qr)
	assert.Empty(t, account)
	assert.Nil(t, s.Bridge())
	assert.Nil(t, s.Adapter())
}
