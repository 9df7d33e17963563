// Command zerepyctl installs and serves the ZerePy agent server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zerepy/zerepyctl/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var coded *cmd.ExitError
		if errors.As(err, &coded) {
			if coded.Err != nil {
				_, _ = fmt.Fprintln(os.Stderr, "Error:", coded.Err)
			}
			os.Exit(coded.Code)
		}
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
