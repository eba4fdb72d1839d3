package widgets

import (
	"context"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const KindDataInfo = "data_info"

// DataInfo reports the size, variable kinds, target and location of its
// input table.
type DataInfo struct {
	summary data.Summary
}

func NewDataInfo() *DataInfo { return &DataInfo{summary: data.Summarize(nil)} }

func (w *DataInfo) Kind() string { return KindDataInfo }

func (w *DataInfo) Signature() flow.Signature {
	return flow.Signature{Inputs: []flow.PortSpec{{Name: PortData, Type: flow.TypeTable}}}
}

func (w *DataInfo) Process(_ context.Context, in flow.Inputs) (flow.Outputs, error) {
	w.summary = data.Summarize(tableInput(in, PortData))
	return nil, nil
}

// Summary returns the last computed summary.
func (w *DataInfo) Summary() data.Summary { return w.summary }

// View implements Viewer.
func (w *DataInfo) View() any { return w.summary }
