package widgets

import (
	"fmt"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

// tableInput returns the table on port, or nil when none is set.
func tableInput(in flow.Inputs, port string) *data.Table {
	t, _ := in.Value(port).(*data.Table)
	return t
}

func errNotA(port, want string) error {
	return fmt.Errorf("input %q does not hold a %s", port, want)
}
