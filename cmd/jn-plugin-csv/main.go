// Command jn-plugin-csv is jn's reference format plugin for comma (or
// otherwise delimited) separated values. No corpus library covers CSV
// encoding (see DESIGN.md for the stdlib justification), so it is built
// directly on encoding/csv.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/jn-run/jn/pkg/jnplugin"
)

func main() {
	os.Exit(plugin().Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func plugin() jnplugin.Plugin {
	return jnplugin.Plugin{
		Manifest: jnplugin.Manifest{
			Name:         "jn-plugin-csv",
			Version:      "1.0.0",
			Role:         jnplugin.RoleFormat,
			Modes:        []jnplugin.Mode{jnplugin.ModeRead, jnplugin.ModeWrite},
			Matches:      []string{`(?i)\.csv$`, `(?i)\.tsv$`},
			ConfigParams: []string{"delimiter", "header"},
		},
		Handlers: map[jnplugin.Mode]jnplugin.Handler{
			jnplugin.ModeRead:  readCSV,
			jnplugin.ModeWrite: writeCSV,
		},
	}
}

func delimiterOf(inv jnplugin.Invocation) rune {
	if d, ok := inv.Config["delimiter"]; ok && d != "" {
		return rune(d[0])
	}
	return ','
}

func hasHeader(inv jnplugin.Invocation) bool {
	return inv.ConfigBool("header", true)
}

func readCSV(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	r := csv.NewReader(stdin)
	r.Comma = delimiterOf(inv)
	r.FieldsPerRecord = -1

	var header []string
	if hasHeader(inv) {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("jn-plugin-csv: reading header: %w", err)
		}
		header = rec
	}

	lw := jnplugin.NewLineWriter(stdout)
	index := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("jn-plugin-csv: reading row: %w", err)
		}
		obj := map[string]interface{}{}
		for i, v := range rec {
			key := columnName(header, i)
			obj[key] = v
		}
		if err := lw.WriteObject(obj); err != nil {
			return err
		}
		index++
	}
	return lw.Flush()
}

func columnName(header []string, i int) string {
	if i < len(header) {
		return header[i]
	}
	return "col" + strconv.Itoa(i)
}

func writeCSV(ctx context.Context, inv jnplugin.Invocation, stdin io.Reader, stdout, stderr io.Writer) error {
	lr := jnplugin.NewLineReader(stdin)
	w := csv.NewWriter(stdout)
	w.Comma = delimiterOf(inv)

	var columns []string
	wroteHeader := false
	for {
		var obj map[string]interface{}
		ok, err := lr.Decode(&obj)
		if err != nil {
			return fmt.Errorf("jn-plugin-csv: decoding record: %w", err)
		}
		if !ok {
			break
		}
		if columns == nil {
			for k := range obj {
				columns = append(columns, k)
			}
			sort.Strings(columns)
		}
		if hasHeader(inv) && !wroteHeader {
			if err := w.Write(columns); err != nil {
				return err
			}
			wroteHeader = true
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = fmt.Sprint(obj[c])
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
