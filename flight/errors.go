package flight

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/conntrack-airport/catalog"
	"github.com/hugr-lab/conntrack-airport/conntrack"
	"github.com/hugr-lab/conntrack-airport/predicate"
)

// statusCode maps an error returned by a catalog table to a gRPC code.
func statusCode(err error) codes.Code {
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}

	var (
		parseErr *predicate.ParseError
		buildErr *predicate.BuildError
		opErr    *conntrack.OpError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.As(err, &parseErr):
		return codes.InvalidArgument
	case errors.Is(err, catalog.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, catalog.ErrReadOnly):
		return codes.FailedPrecondition
	case errors.Is(err, conntrack.ErrClosed):
		return codes.Unavailable
	case errors.As(err, &buildErr), errors.As(err, &opErr):
		return codes.Internal
	}
	return codes.Internal
}

// toStatus wraps err in a gRPC status error prefixed with msg.
func toStatus(err error, msg string) error {
	return status.Errorf(statusCode(err), "%s: %v", msg, err)
}
