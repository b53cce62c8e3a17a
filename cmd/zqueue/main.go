// Command zqueue keeps queues of strings in a directory.
//
//	zqueue put a b c
//	zqueue pull
//	zqueue ls
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
