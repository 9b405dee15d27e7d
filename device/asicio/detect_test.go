package asicio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFindsLastAnsweringChip(t *testing.T) {
	p, bus, rst := newTestPipeline()
	chips := newChips(3, 0)

	// BREAK then test work and ASYNC per chip
	allLen := 1 + 3*(workBytes+1)
	answer := 1 + (workBytes + 1) + 3
	bus.OnTransfer = func(w []byte, r []byte, speedHz uint32) error {
		for i := range r {
			r[i] = 0xff
		}
		if len(w) == allLen {
			r[answer+8] = 0x12
		}
		return nil
	}

	found, err := p.Detect(chips, 0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, found)

	tr := bus.Transfers()
	require.Len(t, tr, 4)
	assert.Len(t, tr[0].Write, 1+configBytes+workBytes)
	assert.Len(t, tr[1].Write, 1+1+configBytes+workBytes)
	assert.Len(t, tr[2].Write, 1+2+configBytes+workBytes)
	assert.Len(t, tr[3].Write, allLen)
	assert.Equal(t, []int{0, 0, 0, 0}, rst.Banks())

	assert.Equal(t, STATE_DONE, p.State(0))
	assert.Equal(t, STATE_DONE, p.State(1))
}

func TestDetectNothing(t *testing.T) {
	p, bus, _ := newTestPipeline()
	chips := newChips(2, 1)
	bus.OnTransfer = func(w []byte, r []byte, speedHz uint32) error {
		for i := range r {
			r[i] = 0xff
		}
		return nil
	}
	found, err := p.Detect(chips, 1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, found)
}

func TestDetectNeedsIdlePipeline(t *testing.T) {
	p, _, _ := newTestPipeline()
	chips := newChips(1, 0)
	_, err := p.Build(chips)
	require.NoError(t, err)

	_, err = p.Detect(chips, 0, 0, 1)
	assert.ErrorIs(t, err, ErrPipelineBusy)
	assert.Equal(t, STATE_READY, p.State(0))
}
