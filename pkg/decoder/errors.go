package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedContainer means no boundary or no parts could be found.
	ErrMalformedContainer = errors.New("malformed container: no parts found")
	// ErrMissingLocator is logged for asset parts nothing can refer to.
	ErrMissingLocator = errors.New("asset part has no locator")
)

// UnsupportedDocumentTypeError is returned when part 0 of an archive is not
// markup.
type UnsupportedDocumentTypeError struct {
	Source      string
	ContentType string
}

func (e *UnsupportedDocumentTypeError) Error() string {
	return fmt.Sprintf("failed to parse html: %s, got %s", e.Source, e.ContentType)
}

func (e *UnsupportedDocumentTypeError) Is(tgt error) bool {
	_, ok := tgt.(*UnsupportedDocumentTypeError)
	return ok
}
