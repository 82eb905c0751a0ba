package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/Mindburn-Labs/doctrine/pkg/dialect"
	"github.com/Mindburn-Labs/doctrine/pkg/envelope"
)

// runFormatCmd implements `doctrine format`: build an envelope from flags
// and a JSON payload (--payload or stdin) and print the dialect record.
//
// Exit codes:
//
//	0 = record printed
//	1 = envelope or record rejected
//	2 = usage error
func runFormatCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("format", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dialectName string
		sourceID    string
		subject     string
		lineage     envelope.Lineage
		payload     string
		approved    string
		link        string
		signer      string
		strict      bool
		validate    bool
	)

	cmd.StringVar(&dialectName, "dialect", "", "Target dialect: relational, document or columnar (REQUIRED)")
	cmd.StringVar(&sourceID, "source", "", "Source identifier (REQUIRED)")
	cmd.StringVar(&subject, "subject", "", "Record subject (REQUIRED)")
	cmd.StringVar(&lineage.AgentID, "agent", "", "Lineage agent id")
	cmd.StringVar(&lineage.BlueprintID, "blueprint", "", "Lineage blueprint id")
	cmd.StringVar(&lineage.SchemaVersion, "schema-version", "", "Lineage schema version (REQUIRED)")
	cmd.StringVar(&payload, "payload", "", "JSON payload; read from stdin when empty")
	cmd.StringVar(&approved, "approved", "", "Approval decision: true or false; dialect default when empty")
	cmd.StringVar(&link, "link", "", "Migration, promotion or consolidation target")
	cmd.StringVar(&signer, "signer", "canonical", "Signature algorithm: canonical or xxhash")
	cmd.BoolVar(&strict, "strict", false, "Require a semantic schema version")
	cmd.BoolVar(&validate, "validate", false, "Validate the record against its dialect schema")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dialectName == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dialect is required")
		return 2
	}
	d, err := dialect.ParseDialect(dialectName)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var s dialect.Signer
	switch signer {
	case "canonical":
		s = dialect.CanonicalSigner{}
	case "xxhash":
		s = dialect.XXHashSigner{}
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown signer %q\n", signer)
		return 2
	}

	var opts []dialect.FormatOption
	if approved != "" {
		v, err := strconv.ParseBool(approved)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --approved: %v\n", err)
			return 2
		}
		opts = append(opts, dialect.WithApproval(v))
	}
	if link != "" {
		opts = append(opts, dialect.WithLink(link))
	}

	raw := []byte(payload)
	if payload == "" {
		if raw, err = io.ReadAll(stdin); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read payload: %v\n", err)
			return 2
		}
	}
	p, err := envelope.NewPayload(raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var bopts []envelope.Option
	if strict {
		bopts = append(bopts, envelope.WithStrictSchemaVersion())
	}
	env, err := envelope.NewBuilder(bopts...).Build(sourceID, subject, p, lineage)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	rec, err := dialect.NewFormatter(dialect.WithSigner(s)).Format(env, d, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if validate {
		if err := dialect.Validate(rec); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	out, err := rec.Encode()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}
