package header

import (
	"fmt"

	"github.com/joshuapare/swiper/internal/mem"
)

// ConsistencyError reports a header observed in a state the protocol
// declares impossible.
type ConsistencyError struct {
	Addr mem.Address // Object address
	Op   string      // Operation that observed the state
	Msg  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("header: consistency violation in %s at %v: %s", e.Op, e.Addr, e.Msg)
}

// Violation panics with a *ConsistencyError.
func Violation(addr mem.Address, op, format string, args ...any) {
	panic(&ConsistencyError{Addr: addr, Op: op, Msg: fmt.Sprintf(format, args...)})
}
