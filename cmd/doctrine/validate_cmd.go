package main

import (
	"fmt"
	"io"

	"github.com/Mindburn-Labs/doctrine/pkg/hierid"
)

// runValidateIDCmd implements `doctrine validate-id <id>...`.
//
// Exit codes:
//
//	0 = every identifier is valid
//	1 = at least one identifier is malformed
//	2 = usage error
func runValidateIDCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "Usage: doctrine validate-id <id> [id...]")
		return 2
	}

	code := 0
	for _, s := range args {
		id, err := hierid.Parse(s)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "%s\tinvalid\t%v\n", s, err)
			code = 1
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%s\tvalid\n", id)
	}
	return code
}
