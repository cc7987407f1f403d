// Command recon reconciles bank statements against ledgers.
package main

import (
	"os"

	"github.com/eshaffer321/ledger-recon/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
