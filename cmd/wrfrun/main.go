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

// Command wrfrun downloads GFS data and runs the WRF weather model on it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wrfrun/wrfrun/wrfrunutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := wrfrunutil.InitializeConfig()
	if err := cfg.Root.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(-1)
	}
}
