package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	table := &Table{
		Columns: []string{"createdAt", "collective slug", "amount", "description", "count"},
		Rows: [][]any{
			{time.Date(2026, time.February, 3, 14, 5, 59, 0, time.UTC), []byte("babel"), 10.5, nil, int64(3)},
			{nil, "webpack", float64(100), "with, comma", int64(0)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	want := "createdAt,collective slug,amount,description,count\n" +
		"2026-02-03 14:05,babel,10.5,,3\n" +
		",webpack,100,\"with, comma\",0\n"
	assert.Equal(t, want, buf.String())
}

func TestFormatValueConvertsZones(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	assert.Equal(t, "2026-02-03 13:05", formatValue(time.Date(2026, time.February, 3, 14, 5, 0, 0, paris)))
	assert.Equal(t, "true", formatValue(true))
}
