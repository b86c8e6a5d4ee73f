package station

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSource marks a record whose source is not one of the supported networks.
	ErrUnknownSource = errors.New("unknown station source")
	// ErrMalformedIdentity marks a record that lacks the fields its source needs for an identity.
	ErrMalformedIdentity = errors.New("malformed station identity")
	// ErrInvalidAQI marks a missing or negative index value.
	ErrInvalidAQI = errors.New("invalid aqi")
)

// DataIntegrityError describes a feed record that cannot be turned into a
// usable station. Whether such a record is dropped or rendered without
// history is up to the caller.
type DataIntegrityError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *DataIntegrityError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; re-reading the same record yields the same error.
func (e *DataIntegrityError) IsTransient() bool {
	return false
}

// FetchFailure wraps an unreachable or undecodable collaborator: the station
// feed, the history table or a boundary dataset.
type FetchFailure struct {
	Resource string
	Err      error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// IsTransient returns true; a later fetch may succeed.
func (e *FetchFailure) IsTransient() bool {
	return true
}

// IsDataIntegrity reports whether err carries a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}

// IsFetchFailure reports whether err carries a FetchFailure.
func IsFetchFailure(err error) bool {
	var target *FetchFailure
	return errors.As(err, &target)
}
