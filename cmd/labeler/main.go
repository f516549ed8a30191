package main

import (
	"context"
	"os"

	"github.com/bosocmputer/invoice_labeler/internal/cli"
	"github.com/charmbracelet/fang"
)

const version = "1.0.0"

func main() {
	root := cli.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
