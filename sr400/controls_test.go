package main

import (
	"errors"
	"testing"

	"github.com/itohio/gosr400/pkg/acquire"
	"github.com/itohio/gosr400/pkg/param"
	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	assert.Equal(t, "0.008", formatTset(0.008))
	assert.Equal(t, "1e-07", formatTset(1e-7))
	assert.Equal(t, "10", itoa(10))
	assert.Equal(t, "12.3", formatValue(12.34))
	assert.Equal(t, "0.0", formatValue(0))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, tsetValidator(""))
	assert.NoError(t, tsetValidator("8*1e-3"))
	assert.ErrorIs(t, tsetValidator("1000"), param.ErrOutOfRange)
	assert.ErrorIs(t, periodsValidator("x"), param.ErrNotNumber)
	assert.NoError(t, experimentsValidator("5"))
	assert.ErrorIs(t, experimentsValidator("0"), param.ErrOutOfRange)

	assert.NoError(t, floatValidator(param.LevelRange)("-1.96"))
	assert.Error(t, intValidator(param.CyclesRange)("0"))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Completed", statusText(acquire.Event{Kind: acquire.Completed}))
	assert.Equal(t, "Stopped", statusText(acquire.Event{Kind: acquire.Stopped}))
	assert.Equal(t, "Failed: boom", statusText(acquire.Event{Kind: acquire.Failed, Err: errors.New("boom")}))
	assert.Equal(t, "started", statusText(acquire.Event{Kind: acquire.Started}))
}

func TestRecordOnStartText(t *testing.T) {
	assert.Equal(t, "Record on Start: On", recordOnStartText(true))
	assert.Equal(t, "Record on Start: Off", recordOnStartText(false))
}
