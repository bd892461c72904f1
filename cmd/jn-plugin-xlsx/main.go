// Command jn-plugin-xlsx is jn's reference format plugin for Excel
// workbooks: it opens the workbook and walks GetRows against the
// chosen sheet, built on xuri/excelize/v2.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "jn-plugin-xlsx",
			Version:      "1.0.0",
			Role:         jnplugin.RoleFormat,
			Modes:        []jnplugin.Mode{jnplugin.ModeRead, jnplugin.ModeWrite},
			Matches:      []string{`(?i)\.xlsx$`},
			ConfigParams: []string{"sheet", "header"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRead:  readXLSX,
			jnplugin.ModeWrite: writeXLSX,
		},
	}
}

func hasHeader(inv jnplugin.Invocation) bool {
	return inv.ConfigBool("header", true)
}

func sheetName(inv jnplugin.Invocation, f *excelize.File) (string, error) {
	if name, ok := inv.Config["sheet"]; ok && name != "" {
		return name, nil
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("jn-plugin-xlsx: workbook has no sheets")
	}
	return sheets[0], nil
}

// readXLSX buffers all of stdin (excelize needs a seekable archive, not
// a stream) and emits one NDJSON record per data row of the chosen
// sheet.
func readXLSX(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	f, err := excelize.OpenReader(stdin)
	if err != nil {
		return fmt.Errorf("jn-plugin-xlsx: open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := sheetName(inv, f)
	if err != nil {
		return err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("jn-plugin-xlsx: reading sheet %q: %w", sheet, err)
	}

	var header []string
	start := 0
	if hasHeader(inv) && len(rows) > 0 {
		header = rows[0]
		start = 1
	}

	lw := jnplugin.NewLineWriter(stdout)
	for _, row := range rows[start:] {
		obj := map[string]interface{}{}
		for i, v := range row {
			obj[columnName(header, i)] = v
		}
		if err := lw.WriteObject(obj); err != nil {
			return err
		}
	}
	return lw.Flush()
}

func columnName(header []string, i int) string {
	if i < len(header) {
		return header[i]
	}
	return fmt.Sprintf("col%d", i)
}

// writeXLSX builds a single-sheet workbook from the NDJSON stream.
// Column order is taken from the first record's sorted keys, matching
// the csv plugin's write-side convention.
func writeXLSX(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	lr := jnplugin.NewLineReader(stdin)
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	if name, ok := inv.Config["sheet"]; ok && name != "" {
		sheet = name
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("jn-plugin-xlsx: creating sheet %q: %w", sheet, err)
		}
		f.DeleteSheet("Sheet1")
	}

	var columns []string
	rowIdx := 1
	for {
		var obj map[string]interface{}
		ok, err := lr.Decode(&obj)
		if err != nil {
			return fmt.Errorf("jn-plugin-xlsx: decoding record: %w", err)
		}
		if !ok {
			break
		}
		if columns == nil {
			columns = sortedKeys(obj)
			if hasHeader(inv) {
				if err := writeRow(f, sheet, rowIdx, toAny(columns)); err != nil {
					return err
				}
				rowIdx++
			}
		}
		values := make([]interface{}, len(columns))
		for i, c := range columns {
			values[i] = obj[c]
		}
		if err := writeRow(f, sheet, rowIdx, values); err != nil {
			return err
		}
		rowIdx++
	}
	if _, err := f.WriteTo(stdout); err != nil {
		return fmt.Errorf("jn-plugin-xlsx: writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
