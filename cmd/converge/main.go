// Converge advances a source tree one version per run: changelog,
// manifest, snapshot, smoke gate, size budget and release packaging.
package main

import (
	"github.com/joho/godotenv"

	"github.com/fatcrapinmybutt/the-manbearpig/cmd/converge/internal/cli"
)

func main() {
	// A missing .env is the common case.
	_ = godotenv.Load()
	cli.Execute()
}
