//go:build !linux

package conntrack

func dialKernel(connectConfig) (Dumper, error) {
	return nil, ErrUnsupported
}
