package hybrid

import "github.com/hashicorp/go-multierror"

// multiErrorAdder aggregates errors from a best-effort teardown sweep (slab
// segment release, per-node region release) so one failure doesn't abort
// the rest of the sweep and every failure is still surfaced to the caller.
type multiErrorAdder struct {
	err *multierror.Error
}

func (m *multiErrorAdder) add(err error) {
	if err != nil {
		m.err = multierror.Append(m.err, err)
	}
}

func (m *multiErrorAdder) errorOrNil() error {
	return m.err.ErrorOrNil()
}
