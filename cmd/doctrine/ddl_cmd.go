package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/doctrine/pkg/dialect"
)

// runDDLCmd implements `doctrine ddl --dialect <d> --name <n>`.
func runDDLCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ddl", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dialectName, name string
	cmd.StringVar(&dialectName, "dialect", "", "Target dialect: relational, document or columnar (REQUIRED)")
	cmd.StringVar(&name, "name", "", "Table or collection name (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dialectName == "" || name == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dialect and --name are required")
		return 2
	}

	d, err := dialect.ParseDialect(dialectName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	stmt, err := dialect.CreateStatement(d, name)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, stmt)
	return 0
}
