// Package recovery converts panics in table implementations into errors so a
// faulty scan cannot crash the server.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverToValue calls fn. If fn panics, the panic and its stack are logged
// and returned as an error together with the zero value.
//
// Example:
//
//	reader, err := recovery.RecoverToValue(logger, "Scan", func() (array.RecordReader, error) {
//	    return table.Scan(ctx, opts)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			var zero T
			result = zero
			err = fmt.Errorf("%s panicked: %v", operation, r)
		}
	}()

	return fn()
}
