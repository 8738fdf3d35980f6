package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

// Workbook exposes the sheets of an uploaded file as rows of cell text.
type Workbook interface {
	Sheet(kind models.ImportKind) ([][]string, bool)
}

// SheetSet is an in-memory Workbook keyed by sheet kind.
type SheetSet map[models.ImportKind][][]string

func (s SheetSet) Sheet(kind models.ImportKind) ([][]string, bool) {
	rows, ok := s[kind]
	return rows, ok
}

// OpenWorkbook decodes an xlsx stream and maps its sheets to import kinds
// using the layout's sheet names. Unrecognised sheets are ignored; when a
// workbook has a single unnamed sheet nothing is mapped.
func OpenWorkbook(r io.Reader, layout Layout) (SheetSet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrImportUnreadable.Code, appErrors.ErrImportUnreadable.Status, appErrors.ErrImportUnreadable.Message)
	}
	defer f.Close()

	sheets := SheetSet{}
	for _, name := range f.GetSheetList() {
		kind, ok := layout.SheetKind(name)
		if !ok {
			continue
		}
		if _, dup := sheets[kind]; dup {
			continue
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, appErrors.Wrap(fmt.Errorf("read sheet %s: %w", name, err), appErrors.ErrImportUnreadable.Code, appErrors.ErrImportUnreadable.Status, appErrors.ErrImportUnreadable.Message)
		}
		sheets[kind] = rows
	}
	return sheets, nil
}
