package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// CanonicalName identifies a frame by its valid time.
type CanonicalName string

const canonicalLayout = "02.01.2006_15:04"

// runOffsetRe matches the model run (YYYYMMDDHH) and the three digit forecast
// hour embedded in a remote filename, e.g. "..._2024042612_007_2d_tot_prec...".
var runOffsetRe = regexp.MustCompile(`(20\d{8})_(\d{3})`)

// Listing is the resolved index of remote files for one run.
type Listing struct {
	// BaseURL is the index URL after redirects; files are fetched relative to it.
	BaseURL string
	Files   []string
}

// ValidTime returns the instant a remote file is valid for: run time plus the
// forecast hour offset, in UTC.
func ValidTime(remote string) (time.Time, error) {
	m := runOffsetRe.FindStringSubmatch(remote)
	if m == nil {
		return time.Time{}, fmt.Errorf("no run/offset in filename %q", remote)
	}
	run, err := time.ParseInLocation("2006010215", m[1], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run time %q: %w", m[1], err)
	}
	offset, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse offset %q: %w", m[2], err)
	}
	return run.Add(time.Duration(offset) * time.Hour), nil
}

// Canonicalize derives the canonical frame name from a remote filename.
// It depends on nothing but its argument.
func Canonicalize(remote string) (CanonicalName, error) {
	t, err := ValidTime(remote)
	if err != nil {
		return "", err
	}
	return NameFor(t), nil
}

// NameFor formats t as a canonical name.
func NameFor(t time.Time) CanonicalName {
	t = t.UTC()
	return CanonicalName(fmt.Sprintf("%s_%d", t.Format(canonicalLayout), t.Unix()))
}
