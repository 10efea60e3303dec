package main

import (
	"os"

	"taxiflow/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
