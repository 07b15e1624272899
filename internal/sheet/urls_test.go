package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestURLsFromRows_HeaderColumn(t *testing.T) {
	rows := [][]string{
		{"title", "URL"},
		{"teapot", "https://example.com/1"},
		{"spoons", "ftp://example.com/2"},
		{"dup", "https://example.com/1"},
		{"short"},
		{"tray", " https://example.com/3 "},
	}
	assert.Equal(t, []string{"https://example.com/1", "https://example.com/3"}, URLsFromRows(rows))
}

func TestURLsFromRows_NoHeader(t *testing.T) {
	rows := [][]string{
		{"https://example.com/1", "x"},
		{"not a url"},
		{"http://example.com/2"},
	}
	assert.Equal(t, []string{"https://example.com/1", "http://example.com/2"}, URLsFromRows(rows))
}

func TestURLsFromRows_Empty(t *testing.T) {
	assert.Nil(t, URLsFromRows(nil))
}

func TestReadURLs_CSV(t *testing.T) {
	path := writeFile(t, "urls.csv", "source_url,price\n# comment\nhttps://example.com/a,10\nhttps://example.com/b,\n")
	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestReadURLs_Text(t *testing.T) {
	path := writeFile(t, "urls.txt", "https://example.com/a\n\n# skip\nhttps://example.com/b\n")
	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestReadURLs_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range [][]string{{"Link"}, {"https://example.com/x"}, {""}} {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "urls.xlsx")
	require.NoError(t, f.Save(path))

	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/x"}, urls)
}

func TestReadURLs_MissingFile(t *testing.T) {
	_, err := ReadURLs(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
