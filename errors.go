/*
Copyright © 2019 the WRFRun authors.
This file is part of WRFRun.

WRFRun is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WRFRun is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WRFRun.  If not, see <http://www.gnu.org/licenses/>.
*/

package wrfrun

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConcurrentWrite indicates that another writer created a destination
// file between the existence check and the commit. It is not a failure.
var ErrConcurrentWrite = errors.New("wrfrun: destination created by another writer")

// ErrNotCached is returned by a SecondaryCache when it does not hold
// a non-empty entry for the requested name.
var ErrNotCached = errors.New("wrfrun: not in secondary cache")

// ConfigError reports an invalid or missing configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("wrfrun: invalid configuration %s: %s", e.Field, e.Reason)
}

// TransientFetchError is a network-level download failure that
// may succeed when retried.
type TransientFetchError struct {
	URL string

	// StatusCode is the HTTP status of the response, or zero if
	// no response was received.
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("wrfrun: downloading %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("wrfrun: downloading %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// BatchFetchError is returned when at least one item in a batch
// could not be fetched. Files fetched by the other items remain on disk.
type BatchFetchError struct {
	// Failed holds the outcome of every failed item.
	Failed []FetchOutcome

	// Total is the number of items in the batch.
	Total int
}

func (e *BatchFetchError) Error() string {
	first := e.Failed[0]
	return fmt.Sprintf("wrfrun: %d of %d files could not be downloaded; first failure %s after %d attempt(s): %v",
		len(e.Failed), e.Total, first.Item.RemoteLocator, first.Attempts, first.Err)
}

// Unwrap returns the error of the first failed item.
func (e *BatchFetchError) Unwrap() error {
	if len(e.Failed) == 0 {
		return nil
	}
	return e.Failed[0].Err
}

// Missing returns the destination paths of the failed items.
func (e *BatchFetchError) Missing() []string {
	o := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		o[i] = f.Item.LocalPath
	}
	return o
}

// MissingDataError reports inventory files that are absent or empty.
type MissingDataError struct {
	Missing []string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("wrfrun: %d GFS file(s) unavailable: %s",
		len(e.Missing), strings.Join(e.Missing, ", "))
}
