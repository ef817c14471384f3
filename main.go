package main

import (
	"os"

	"github.com/sqlflow-dev/sqlflow/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
