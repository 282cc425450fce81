package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportAuditWorkbook renders an audit report as an XLSX workbook with one
// sheet per finding kind.
func ExportAuditWorkbook(report *AuditReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Generated at", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Total accounts", report.TotalAccounts},
		{"Missing codes", len(report.MissingCodes)},
		{"Duplicate groups", len(report.Duplicates)},
		{"Malformed codes", len(report.Malformed)},
		{"Broken chains", len(report.Broken)},
		{"Chains", report.Depth.ChainCount},
		{"Average depth", report.Depth.AverageDepth},
		{"Max depth", report.Depth.MaxDepth},
		{"Full 5-level chains", report.Depth.FullWindowChains},
		{"Truncated chains", report.Depth.TruncatedChains},
		{"Healthy", report.Healthy},
	}
	if err := writeRows(f, "Summary", []string{"Metric", "Value"}, summary); err != nil {
		return nil, err
	}

	depths := make([]int, 0, len(report.Depth.Distribution))
	for d := range report.Depth.Distribution {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	var depthRows [][]interface{}
	for _, d := range depths {
		depthRows = append(depthRows, []interface{}{d, report.Depth.Distribution[d]})
	}

	var missing, duplicates, malformed, broken [][]interface{}
	for _, m := range report.MissingCodes {
		missing = append(missing, []interface{}{m.AccountID, m.Email})
	}
	for _, d := range report.Duplicates {
		ids := make([]string, len(d.AccountIDs))
		for i, id := range d.AccountIDs {
			ids[i] = fmt.Sprint(id)
		}
		duplicates = append(duplicates, []interface{}{d.Code, len(d.AccountIDs), strings.Join(ids, ", ")})
	}
	for _, m := range report.Malformed {
		malformed = append(malformed, []interface{}{m.AccountID, m.Code})
	}
	for _, b := range report.Broken {
		broken = append(broken, []interface{}{b.AccountID, b.ReferredBy})
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]interface{}
	}{
		{"Depth", []string{"Depth", "Chains"}, depthRows},
		{"Missing", []string{"Account ID", "Email"}, missing},
		{"Duplicates", []string{"Code", "Holders", "Account IDs"}, duplicates},
		{"Malformed", []string{"Account ID", "Code"}, malformed},
		{"Broken", []string{"Account ID", "Referred by"}, broken},
	}
	for _, sh := range sheets {
		if _, err := f.NewSheet(sh.name); err != nil {
			return nil, err
		}
		if err := writeRows(f, sh.name, sh.headers, sh.rows); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]interface{}) error {
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
	}
	return nil
}
