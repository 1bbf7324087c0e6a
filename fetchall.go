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
	"context"
	"sync"
)

// FetchAll fetches every item using at most concurrency simultaneous
// downloads. Items are partitioned across workers by index, and each
// worker writes only its own items' outcomes, so the returned outcomes
// are in the same order as items. Once every item has finished, a
// *BatchFetchError is returned if any of them failed.
func FetchAll(ctx context.Context, items []WorkItem, f *Fetcher, concurrency int) ([]FetchOutcome, error) {
	if concurrency < 1 {
		return nil, &ConfigError{Field: "gfs_threads", Reason: "must be >= 1"}
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}
	outcomes := make([]FetchOutcome, len(items))

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for procNum := 0; procNum < concurrency; procNum++ {
		go func(procNum int) {
			defer wg.Done()
			for ii := procNum; ii < len(items); ii += concurrency {
				outcomes[ii] = f.Fetch(ctx, items[ii])
			}
		}(procNum)
	}
	wg.Wait()

	var failed []FetchOutcome
	for _, o := range outcomes {
		if o.Status == Failed {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		return outcomes, &BatchFetchError{Failed: failed, Total: len(items)}
	}
	return outcomes, nil
}

// Summary counts outcomes by status.
func Summary(outcomes []FetchOutcome) map[FetchStatus]int {
	o := make(map[FetchStatus]int)
	for _, out := range outcomes {
		o[out.Status]++
	}
	return o
}
