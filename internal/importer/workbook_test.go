package importer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

func buildWorkbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "教員"))
	require.NoError(t, f.SetSheetRow("教員", "A1", &[]interface{}{"yamada", "pw", "山田"}))

	_, err := f.NewSheet("科目")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("科目", "A1", "2025年度"))

	_, err = f.NewSheet("メモ")
	require.NoError(t, err)

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestOpenWorkbookMapsSheetsByName(t *testing.T) {
	sheets, err := OpenWorkbook(buildWorkbook(t), LayoutFor("ja"))
	require.NoError(t, err)

	teachers, ok := sheets.Sheet(models.ImportKindTeachers)
	require.True(t, ok)
	assert.Equal(t, [][]string{{"yamada", "pw", "山田"}}, teachers)

	subjects, ok := sheets.Sheet(models.ImportKindSubjects)
	require.True(t, ok)
	assert.Equal(t, "2025年度", subjects[0][0])

	_, ok = sheets.Sheet(models.ImportKindStudents)
	assert.False(t, ok)
}

func TestOpenWorkbookRejectsGarbage(t *testing.T) {
	_, err := OpenWorkbook(bytes.NewBufferString("not a workbook"), LayoutFor("ja"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImportUnreadable.Code, appErrors.FromError(err).Code)
}

func TestCellNormalisation(t *testing.T) {
	assert.Equal(t, "25K", NewCell(" ２５Ｋ ").Text())
	assert.Equal(t, "山田 太郎", NewCell("山田　 太郎").Text())
	assert.True(t, CellAt([]string{"a"}, 3).Blank())

	n, err := NewCell("2.0").Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = NewCell("2.5").Int()
	assert.Error(t, err)
}
