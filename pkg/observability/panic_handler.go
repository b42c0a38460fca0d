package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in the calling goroutine and logs it with its stack.
// Call it directly in a defer statement; the panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "daily rollup job")
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// MustRecover converts a recovered value into an error, nil when r is nil
//
//	defer func() {
//	    if perr := observability.MustRecover(recover()); perr != nil {
//	        err = perr
//	    }
//	}()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
