package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTset(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr error
	}{
		{name: "one second", in: "1", want: 1},
		{name: "lower bound", in: "1e-9", want: 1e-9},
		{name: "upper bound", in: "100", want: 100},
		{name: "exponent", in: "8e-3", want: 0.008},
		{name: "product", in: "8*1e-3", want: 0.008},
		{name: "spaces", in: "  0.5 ", want: 0.5},
		{name: "below range", in: "1e-10", wantErr: ErrOutOfRange},
		{name: "above range", in: "100.0001", wantErr: ErrOutOfRange},
		{name: "zero", in: "0", wantErr: ErrOutOfRange},
		{name: "negative", in: "-1", wantErr: ErrOutOfRange},
		{name: "text", in: "abc", wantErr: ErrNotNumber},
		{name: "empty", in: "", wantErr: ErrNotNumber},
		{name: "nan", in: "NaN", wantErr: ErrNotNumber},
		{name: "inf", in: "Inf", wantErr: ErrNotNumber},
		{name: "half product", in: "2*", wantErr: ErrNotNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tset(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-15)
		})
	}
}

func TestIntValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) (int, error)
		in       string
		want     int
		wantErr  error
	}{
		{name: "periods min", validate: Periods, in: "1", want: 1},
		{name: "periods max", validate: Periods, in: "2000", want: 2000},
		{name: "periods zero", validate: Periods, in: "0", wantErr: ErrOutOfRange},
		{name: "periods over", validate: Periods, in: "2001", wantErr: ErrOutOfRange},
		{name: "periods float", validate: Periods, in: "10.5", wantErr: ErrNotNumber},
		{name: "experiments min", validate: Experiments, in: "1", want: 1},
		{name: "experiments max", validate: Experiments, in: "1000", want: 1000},
		{name: "experiments zero", validate: Experiments, in: "0", wantErr: ErrOutOfRange},
		{name: "experiments over", validate: Experiments, in: "1001", wantErr: ErrOutOfRange},
		{name: "experiments text", validate: Experiments, in: "ten", wantErr: ErrNotNumber},
		{name: "scan end stop", validate: ScanEnd, in: "0", want: 0},
		{name: "scan end restart", validate: ScanEnd, in: "1", want: 1},
		{name: "scan end invalid", validate: ScanEnd, in: "2", wantErr: ErrOutOfRange},
		{name: "cycles", validate: Cycles, in: "101", want: 101},
		{name: "cycles zero", validate: Cycles, in: "0", wantErr: ErrOutOfRange},
		{name: "hz", validate: Hz, in: "1", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.validate(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloatValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) (float64, error)
		in       string
		want     float64
		wantErr  error
	}{
		{name: "level", validate: ScanLevel, in: "-1.960", want: -1.96},
		{name: "level min", validate: ScanLevel, in: "-10", want: -10},
		{name: "level over", validate: ScanLevel, in: "10.001", wantErr: ErrOutOfRange},
		{name: "step", validate: ScanStep, in: "0.010", want: 0.01},
		{name: "step negative", validate: ScanStep, in: "-0.5", want: -0.5},
		{name: "step over", validate: ScanStep, in: "0.6", wantErr: ErrOutOfRange},
		{name: "dwell", validate: Dwell, in: "2e-3", want: 0.002},
		{name: "dwell short", validate: Dwell, in: "1e-3", wantErr: ErrOutOfRange},
		{name: "inner sleep zero", validate: InnerSleep, in: "0", want: 0},
		{name: "inner sleep negative", validate: InnerSleep, in: "-0.1", wantErr: ErrOutOfRange},
		{name: "level text", validate: ScanLevel, in: "1,5", wantErr: ErrNotNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.validate(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPartial(t *testing.T) {
	check := Partial(Experiments)

	assert.NoError(t, check(""))
	assert.NoError(t, check("  "))
	assert.NoError(t, check("5"))
	assert.ErrorIs(t, check("0"), ErrOutOfRange)
	assert.ErrorIs(t, check("x"), ErrNotNumber)

	checkTset := Partial(Tset)
	assert.NoError(t, checkTset("1e-3"))
	assert.Error(t, checkTset("1e3"))
}
