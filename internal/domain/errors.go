package domain

import "errors"

// Failure classes of a run. Fetch and extract failures skip a single file;
// listing and write failures abort the run.
var (
	ErrListing = errors.New("listing failed")
	ErrFetch   = errors.New("fetch failed")
	ErrExtract = errors.New("extract failed")
	ErrWrite   = errors.New("write failed")
)

// Recoverable reports whether err only affects a single file of the batch.
func Recoverable(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrExtract)
}
