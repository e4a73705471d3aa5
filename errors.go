package quantmat

import "errors"

var (
	// ErrUnsupportedOperation is returned by write paths that a compressed
	// matrix cannot support without re-quantizing.
	ErrUnsupportedOperation = errors.New("operation not permitted on quantized matrices")

	// ErrEmptyMatrix is returned when quantizing a matrix with no rows or
	// no columns.
	ErrEmptyMatrix = errors.New("matrix must have at least one row and one column")

	// ErrCorruptMatrix is returned when loaded header fields contradict
	// each other or the quantizer geometry.
	ErrCorruptMatrix = errors.New("corrupt quantized matrix")
)
