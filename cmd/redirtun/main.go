package main

import (
	"fmt"
	"os"
)

// ballast reduces GC overhead by setting a minimum heap size; GOGC/GOMEMLIMIT
// alone can't express this. It only reserves virtual memory, not RSS, so
// it's safe to ignore in memory profiles.
var ballast = make([]byte, 0, 25_000_000)

func main() {
	_ = ballast

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
