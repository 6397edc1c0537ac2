package classfile

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Class-file error types
// ---------------------------------------------------------------------------

// ErrMalformed is the root of every class-file format error. A class whose
// bytes fail to parse is unusable; callers must not retry.
var ErrMalformed = errors.New("malformed class file")

var (
	ErrBadMagic           = fmt.Errorf("%w: invalid magic number", ErrMalformed)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrMalformed)
	ErrTruncated          = fmt.Errorf("%w: unexpected end of data", ErrMalformed)
	ErrBadConstant        = fmt.Errorf("%w: bad constant pool entry", ErrMalformed)
	ErrBadDescriptor      = fmt.Errorf("%w: bad descriptor", ErrMalformed)
)
