//go:build !linux

package gpio

import "errors"

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chipName string) (*RealSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Watch is not implemented on non-Linux platforms.
func (r *RealSource) Watch(line int, bias Bias, onEdge func()) error {
	return errors.New("gpio: not supported")
}

// Unwatch is not implemented on non-Linux platforms.
func (r *RealSource) Unwatch(line int) error {
	return errors.New("gpio: not supported")
}

// Level is not implemented on non-Linux platforms.
func (r *RealSource) Level(line int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealSource) Close() error {
	return nil
}
