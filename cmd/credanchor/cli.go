package main

import (
	"fmt"
	"io"
	"path/filepath"
)

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "hash":
		return runHash(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "token":
		return runToken(args[2:], stdout, stderr)
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, w io.Writer) {
	name := "credanchor"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  %s hash [--type auto|json|binary] [--canonical] <file|->\n", name)
	fmt.Fprintf(w, "  %s verify --server <url> [--timeout <duration>] <proof-hash>\n", name)
	fmt.Fprintf(w, "  %s token --secret <secret> --subject <id> [--issuer <iss>] [--ttl <duration>]\n", name)
}
