/*
 *  main.go
 *  cmd
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package main

import (
	"os"

	logging "github.com/op/go-logging"
	"github.com/tangerine-bio/rnadge"
)

// main is the entrypoint for the entire program, routes to commands
func main() {
	logging.SetBackend(rnadge.BackendFormatter)
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
