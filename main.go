package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ZHOUKAILIAN/smart-ingredients/cmd"
)

func main() {
	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
