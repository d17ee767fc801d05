package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gosr400/pkg/reading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeLine(t *testing.T) {
	now := time.Now()
	l := TimeLine("A", []time.Time{now, now.Add(500 * time.Millisecond), now.Add(2 * time.Second)}, []float64{1, 2})

	assert.Equal(t, "A", l.Name)
	assert.Equal(t, []float64{0, 0.5}, l.X)
	assert.Equal(t, []float64{1, 2}, l.Y)
}

func TestIndexLine(t *testing.T) {
	l := IndexLine("X", []float64{3, 4, 5})
	assert.Equal(t, []float64{0, 1, 2}, l.X)
	assert.True(t, l.Markers)
}

func TestPlot_NoData(t *testing.T) {
	_, err := Plot("t", "x", "y")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = Plot("t", "x", "y", Line{Name: "empty"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.png")

	err := SavePNG(path, "Data", "Time (s)", "Counts",
		Line{Name: "A", X: []float64{0, 1, 2}, Y: []float64{10, 12, 11}},
		IndexLine("X", []float64{11, 11.5}),
	)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestColumnMeans(t *testing.T) {
	tests := []struct {
		name string
		in   string
		sep  rune
		want []Column
	}{
		{
			name: "csv with header",
			in:   "N,Counts\n1,10\n2,20\n3,30\n",
			sep:  reading.Comma,
			want: []Column{{Name: "N", Mean: 2, N: 3}, {Name: "Counts", Mean: 20, N: 3}},
		},
		{
			name: "space separated without header",
			in:   "1  4\n3 8\n\n",
			sep:  reading.Space,
			want: []Column{{Name: "1", Mean: 2, N: 2}, {Name: "2", Mean: 6, N: 2}},
		},
		{
			name: "ragged rows and bad cells",
			in:   "a,b,c\n1,x,5\n3,4\n",
			sep:  reading.Comma,
			want: []Column{{Name: "a", Mean: 2, N: 2}, {Name: "b", Mean: 4, N: 1}, {Name: "c", Mean: 5, N: 1}},
		},
		{
			name: "header only",
			in:   "a,b\n",
			sep:  reading.Comma,
			want: []Column{{Name: "a"}, {Name: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ColumnMeans(strings.NewReader(tt.in), tt.sep)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Name, got[i].Name)
				assert.InDelta(t, tt.want[i].Mean, got[i].Mean, 1e-12)
				assert.Equal(t, tt.want[i].N, got[i].N)
			}
		})
	}
}

func TestColumnMeans_Empty(t *testing.T) {
	got, err := ColumnMeans(strings.NewReader(""), reading.Comma)
	require.NoError(t, err)
	assert.Empty(t, got)
}
