// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"context"
	"os"
	"os/signal"

	"ariga.io/maguey/cmd/maguey/internal/cmdapi"
	_ "ariga.io/maguey/sql/mysql"
	_ "ariga.io/maguey/sql/postgres"
	_ "ariga.io/maguey/sql/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	root := cmdapi.NewRoot()
	root.SetOut(os.Stdout)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
