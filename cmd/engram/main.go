package main

import (
	"encoding/json"
	"fmt"
	"os"

	goerrors "errors"

	"engram/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		emitError(err)
		os.Exit(1)
	}
}

// emitError renders the stable error envelope on stderr. Errors without a
// code in their chain are cobra's own flag and argument failures.
func emitError(err error) {
	envelope := map[string]any{
		"error": map[string]any{
			"code":    cliCode(err),
			"message": errors.MessageOf(err),
		},
	}
	data, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

func cliCode(err error) errors.ErrorCode {
	var engramErr *errors.EngramError
	if goerrors.As(err, &engramErr) {
		return engramErr.Code
	}
	return errors.Usage
}
