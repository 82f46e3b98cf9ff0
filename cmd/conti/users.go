package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"conti/internal/auth"
	"conti/internal/core"
	"conti/internal/services"

	"github.com/google/subcommands"
)

// userMessage turns an error into the line shown to the user. Storage
// causes stay in the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrDuplicateUser):
		return "username already exists"
	case errors.Is(err, core.ErrAuthFailure):
		return "invalid username or password"
	case errors.Is(err, core.ErrNotSupported):
		return "custom splits are not yet supported"
	case errors.Is(err, core.ErrStorageFailure):
		return "could not reach the ledger storage, see the logs"
	default:
		return err.Error()
	}
}

func moneyIn(v float64, currency string) string {
	return core.DisplayMoney(v, currency)
}

type registerCmd struct {
	*app
	user  string
	email string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create a user" }
func (*registerCmd) Usage() string {
	return `register -user <name> [-email <address>]

  Creates a user. The password is read from the terminal, or from the
  first line of standard input when it is not a terminal.
`
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
	f.StringVar(&c.email, "email", "", "email address")
}

func (c *registerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.user) == "" {
		fmt.Fprintln(c.stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	password, err := c.readPassword(fmt.Sprintf("New password for %s: ", c.user))
	if err != nil {
		return c.fail(err)
	}

	svc, err := c.openService(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer svc.Close()

	if err := svc.Register(ctx, c.user, password, c.email); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "Registered %s.\n", c.user)
	return subcommands.ExitSuccess
}

type loginCmd struct {
	*app
	user string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "check credentials and print an API token" }
func (*loginCmd) Usage() string {
	return `login -user <name>

  Verifies the password. When JWT_SECRET is set, prints a bearer token
  for the HTTP API on its own line.
`
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
}

func (c *loginCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withSession(ctx, c.user, func(_ *services.LedgerService, sess *services.Session) error {
		fmt.Fprintf(c.stdout, "Logged in as %s.\n", sess.Username)
		if c.cfg.JWTSecret == "" {
			return nil
		}
		token, err := auth.NewTokenManager(c.cfg.JWTSecret, c.cfg.SessionTTL).Issue(sess.Username)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, token)
		return nil
	})
}

type whoamiCmd struct {
	*app
	user string
}

func (*whoamiCmd) Name() string     { return "whoami" }
func (*whoamiCmd) Synopsis() string { return "show the stored details of a user" }
func (*whoamiCmd) Usage() string {
	return `whoami -user <name>
`
}

func (c *whoamiCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "username (required)")
}

func (c *whoamiCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.withSession(ctx, c.user, func(svc *services.LedgerService, sess *services.Session) error {
		info, err := svc.User(ctx, sess)
		if err != nil {
			return err
		}
		email := info.Email
		if email == "" {
			email = "(no email)"
		}
		fmt.Fprintf(c.stdout, "%s <%s>\n", info.Username, email)
		return nil
	})
}
