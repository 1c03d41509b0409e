package nifti

import "errors"

var (
	// ErrMalformed is returned when the input cannot be parsed as a NIfTI-1
	// volume at all: wrong header size, bad magic, corrupt compression or a
	// payload shorter than the header promises.
	ErrMalformed = errors.New("malformed nifti data")

	// ErrUnsupported is returned for well-formed files this package does not
	// handle, such as NIfTI-2, header/image pairs or non-scalar datatypes.
	ErrUnsupported = errors.New("unsupported nifti variant")

	// ErrShape is returned by the encoders when the voxel array does not match
	// the dimensions recorded in the header.
	ErrShape = errors.New("voxel array does not match header dimensions")
)
