package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"credanchor/pkg/proofhash"
)

func runHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var kind string
	var canonical bool
	fs.StringVar(&kind, "type", "auto", "payload type: auto, json or binary")
	fs.BoolVar(&canonical, "canonical", false, "print the canonical JSON before the hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "hash requires exactly one input file (use - for stdin)")
		return 1
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}

	var payload proofhash.Payload
	switch kind {
	case "auto":
		payload, err = proofhash.Detect(data)
	case "json":
		payload, err = proofhash.StructuredJSON(data)
	case "binary":
		payload = proofhash.Binary(data)
	default:
		fmt.Fprintf(stderr, "unknown type %q\n", kind)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "hash: %v\n", err)
		return 1
	}

	if canonical && payload.Kind() == proofhash.KindStructured {
		fmt.Fprintln(stdout, string(payload.Bytes()))
	}
	fmt.Fprintf(stdout, "%s  %s\n", payload.ProofHash(), payload.Kind())
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
