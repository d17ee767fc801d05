package reading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsample_NoDownsampling(t *testing.T) {
	src := []float64{1, 2, 3}

	result := Downsample(nil, src, 10)
	assert.Equal(t, src, result)

	dst := make([]float64, 0, 10)
	result = Downsample(dst, src, 10)
	assert.Equal(t, src, result)
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	src := make([]float64, 100)
	for i := range src {
		src[i] = float64(i)
	}

	dst := make([]float64, 0, 20)
	result := Downsample(dst, src, 10)
	require.Len(t, result, 10)
	assert.Equal(t, 0.0, result[0])
	assert.GreaterOrEqual(t, result[len(result)-1], 80.0)
	for i := 1; i < len(result); i++ {
		assert.Greater(t, result[i], result[i-1])
	}
}

func TestDownsample_Times(t *testing.T) {
	now := time.Now()
	src := make([]time.Time, 50)
	for i := range src {
		src[i] = now.Add(time.Duration(i) * time.Second)
	}

	result := Downsample[time.Time](nil, src, 5)
	require.Len(t, result, 5)
	assert.Equal(t, src[0], result[0])
	assert.Equal(t, src[40], result[4])
}

func TestDownsample_Empty(t *testing.T) {
	result := Downsample[float64](nil, nil, 10)
	assert.Empty(t, result)
}
