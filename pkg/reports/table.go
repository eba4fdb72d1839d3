package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/signalflow/pkg/data"
)

// WriteTableCSV writes a data table with a header row. Discrete values are
// written as labels and missing values as empty cells.
func WriteTableCSV(w io.Writer, t *data.Table) error {
	writer := csv.NewWriter(w)
	d := t.Domain()

	headers := []string{"row_id"}
	for _, v := range d.Attributes {
		headers = append(headers, v.Name)
	}
	if d.Class != nil {
		headers = append(headers, d.Class.Name)
	}
	for _, v := range d.Metas {
		headers = append(headers, v.Name)
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i := 0; i < t.Len(); i++ {
		inst := t.Row(i)
		row := []string{strconv.Itoa(t.RowID(i))}
		for j, v := range d.Attributes {
			row = append(row, cell(v, inst.X[j]))
		}
		if d.Class != nil {
			row = append(row, cell(*d.Class, inst.Y))
		}
		for j := range d.Metas {
			m := ""
			if j < len(inst.Metas) {
				m = inst.Metas[j]
			}
			row = append(row, m)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func cell(v data.Variable, x float64) string {
	if l := v.Label(x); l != "?" {
		return l
	}
	return ""
}
