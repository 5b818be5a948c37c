// Command eeipc-harness is a thin entrypoint for the developer/test CLI
// in cmd/eeipc-harness.
package main

import "github.com/kvhost/eeipc/cmd/eeipc-harness"

func main() {
	eeipcharness.Execute()
}
