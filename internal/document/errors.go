package document

import (
	"errors"
	"fmt"

	"streetsketch/core-go/internal/layers"
)

type Kind string

const (
	KindDocumentInvalid   Kind = "DocumentInvalid"
	KindGeometryMalformed Kind = "GeometryMalformed"
)

const (
	PrefixStorage = "storage unavailable"
	PrefixNetwork = "network failure"
)

var (
	ErrDocumentInvalid   = errors.New("document invalid")
	ErrGeometryMalformed = layers.ErrGeometryMalformed
)

// Error is a failed load. Raw keeps the unparsed input so a user can
// download it for manual recovery.
type Error struct {
	Kind   Kind
	Prefix string
	Err    error
	Raw    []byte
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Prefix != "" {
		msg = e.Prefix + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDocumentInvalid:
		return e.Kind == KindDocumentInvalid
	default:
		return false
	}
}

func invalid(raw []byte, format string, args ...any) *Error {
	return &Error{Kind: KindDocumentInvalid, Err: fmt.Errorf(format, args...), Raw: raw}
}

// StorageUnavailable reports a storage collaborator failure as an invalid
// document.
func StorageUnavailable(err error) *Error {
	return &Error{Kind: KindDocumentInvalid, Prefix: PrefixStorage, Err: err}
}

// NetworkFailure reports a failed remote fetch as an invalid document.
func NetworkFailure(err error, raw []byte) *Error {
	return &Error{Kind: KindDocumentInvalid, Prefix: PrefixNetwork, Err: err, Raw: raw}
}

// RawData returns the unparsed input carried by err, if any.
func RawData(err error) []byte {
	var de *Error
	if errors.As(err, &de) {
		return de.Raw
	}
	return nil
}
