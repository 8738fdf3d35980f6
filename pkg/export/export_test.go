package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterWritesBOMAndRows(t *testing.T) {
	data := Dataset{Headers: []string{"code", "name"}}
	data.Append("S001", "山田")
	data.Append("S002")

	out, err := NewCSVExporter(true).Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, utf8BOM))
	assert.Equal(t, "code,name\nS001,山田\nS002,\n", string(out[len(utf8BOM):]))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(false).Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRendersWithCoreFont(t *testing.T) {
	data := Dataset{Headers: []string{"code", "score"}}
	data.Append("S001", "80")

	out, err := NewPDFExporter("").Render(data, "Math 2025")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterMissingFont(t *testing.T) {
	data := Dataset{Headers: []string{"code"}}
	_, err := NewPDFExporter("/nonexistent/font.ttf").Render(data, "")
	assert.Error(t, err)
}
