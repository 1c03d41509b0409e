package pipeline

import "fmt"

// Kind classifies why a volume could not be processed.
type Kind int

const (
	// UnsupportedFileName means the upload name does not end in .nii or .nii.gz
	UnsupportedFileName Kind = iota + 1

	// InvalidFormat means the bytes are a NIfTI variant that is not handled
	InvalidFormat

	// DecodeFailure means the bytes could not be parsed as a volume
	DecodeFailure

	// EncodeFailure means the normalized volume could not be serialized
	EncodeFailure
)

func (k Kind) String() string {
	switch k {
	case UnsupportedFileName:
		return "unsupported file name"
	case InvalidFormat:
		return "invalid format"
	case DecodeFailure:
		return "decode failure"
	case EncodeFailure:
		return "encode failure"
	default:
		return "unknown"
	}
}

// Error is returned by Processor.Process. Err is the underlying cause and
// stays reachable through errors.Is and errors.As.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
