package main

import (
	"os"

	"github.com/triagehub/triagehub/triageservice"
)

func main() {
	if err := triageservice.Run(); err != nil {
		os.Exit(1)
	}
}
