package main

import (
	"context"
	"errors"
	"os"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/cli"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

func main() {
	common.LoadVersionFromFile()

	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
