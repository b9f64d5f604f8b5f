package output

import (
	"errors"

	"github.com/tkjaer/tcpping/internal/shared"
)

// Output interface for different output types
type Output interface {
	Report(res shared.Result)
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) Report(res shared.Result) {
	for _, o := range om.outputs {
		o.Report(res)
	}
}

// Close closes every output and returns the joined errors
func (om *OutputManager) Close() error {
	var errs []error
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
