package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"credanchor/internal/infra/auth/jwtauth"
	"credanchor/internal/infra/auth/rbac"
)

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var secret, subject, issuer, roles string
	var ttl time.Duration
	fs.StringVar(&secret, "secret", "", "HS256 secret (JWT_SECRET)")
	fs.StringVar(&subject, "subject", "", "token subject")
	fs.StringVar(&issuer, "issuer", "", "token issuer (JWT_ISSUER)")
	fs.StringVar(&roles, "roles", rbac.DefaultAdminRole, "comma separated roles")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if secret == "" || subject == "" {
		fmt.Fprintln(stderr, "token requires --secret and --subject")
		return 1
	}

	auth, err := jwtauth.New(secret, issuer)
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}
	token, err := auth.Sign(subject, roleList, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
