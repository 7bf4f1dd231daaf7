package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"survey-insights-go/internal/types"
)

// Load reads the Work Catalog from a CSV or XLSX file. The file_path and
// sample_id columns are detected by header heuristics; every other column is
// carried through as Extra so the result dataset stays joinable.
func Load(path string) ([]types.WorkItem, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return fromRows(rows)
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func fromRows(rows [][]string) ([]types.WorkItem, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no header row")
	}
	header := rows[0]
	pathIdx := -1
	idIdx := -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "file_path" || l == "filepath" || strings.Contains(l, "file") && strings.Contains(l, "path"):
			if pathIdx == -1 {
				pathIdx = i
			}
		case l == "sample_id" || l == "sample id" || strings.Contains(l, "sample"):
			if idIdx == -1 {
				idIdx = i
			}
		}
	}
	// fallback: a bare "path" column
	if pathIdx == -1 {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), "path") {
				pathIdx = i
				break
			}
		}
	}
	if pathIdx == -1 {
		return nil, fmt.Errorf("no file path column in header %v", header)
	}

	var out []types.WorkItem
	for i, r := range rows {
		if i == 0 {
			continue
		}
		path := cell(r, pathIdx)
		if path == "" {
			// skip rows without audio quietly
			continue
		}
		sampleID := cell(r, idIdx)
		if sampleID == "" {
			sampleID = fmt.Sprintf("sample_%d", i-1)
		}
		item := types.NewWorkItem(sampleID, path)
		for j, h := range header {
			if j == pathIdx || j == idIdx || strings.TrimSpace(h) == "" {
				continue
			}
			if item.Extra == nil {
				item.Extra = map[string]string{}
			}
			item.Extra[strings.TrimSpace(h)] = cell(r, j)
		}
		out = append(out, item)
	}
	return out, nil
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}
