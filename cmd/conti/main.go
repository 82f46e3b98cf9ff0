// Command conti records expenses and splits bills from the terminal, and
// serves the same ledger over HTTP with "conti serve".
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"conti/internal/cli"
	"conti/internal/config"
	"conti/internal/log"
	"conti/internal/services"

	"github.com/google/subcommands"
	"golang.org/x/term"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// app is the state shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	lines  *bufio.Reader
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	top := flag.NewFlagSet("conti", flag.ContinueOnError)
	top.SetOutput(stderr)
	envFile := top.String("env-file", ".env", "file with environment defaults")
	backendName := top.String("backend", "", "storage backend, overrides DATA_BACKEND")
	verbose := top.Bool("v", false, "log at LOG_LEVEL instead of warnings only")
	if err := top.Parse(args); err != nil {
		return int(subcommands.ExitUsageError)
	}

	if err := cli.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return int(subcommands.ExitFailure)
	}
	cfg := config.Load()
	if *backendName != "" {
		cfg.DataBackend = *backendName
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return int(subcommands.ExitFailure)
	}

	// Interactive commands keep stderr quiet; the server logs as configured.
	if !*verbose && top.Arg(0) != "serve" {
		cfg.LogLevel = slog.LevelWarn.String()
	}
	a := &app{
		cfg:    cfg,
		logger: cli.SetupLogger(cfg, stderr, log.ComponentCLI),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	commander := subcommands.NewCommander(top, "conti")
	commander.Output = stdout
	commander.Error = stderr
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&registerCmd{app: a}, "users")
	commander.Register(&loginCmd{app: a}, "users")
	commander.Register(&whoamiCmd{app: a}, "users")

	commander.Register(&addExpenseCmd{app: a}, "expenses")
	commander.Register(&expensesCmd{app: a}, "expenses")
	commander.Register(&summaryCmd{app: a}, "expenses")

	commander.Register(&splitCmd{app: a}, "bills")
	commander.Register(&billsCmd{app: a}, "bills")

	commander.Register(&serveCmd{app: a}, "server")

	return int(commander.Execute(ctx))
}

// openService opens the configured backend with event publishing.
func (a *app) openService(ctx context.Context) (*services.LedgerService, error) {
	return cli.OpenService(ctx, a.cfg, a.logger, nil, true)
}

// readPassword prompts on stderr. A terminal gets no echo; anything else
// is read one line at a time so passwords can be piped in.
func (a *app) readPassword(prompt string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if a.lines == nil {
		a.lines = bufio.NewReader(a.stdin)
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// login asks for username's password and opens a session.
func (a *app) login(ctx context.Context, svc *services.LedgerService, username string) (*services.Session, error) {
	password, err := a.readPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, err
	}
	return svc.Login(ctx, username, password)
}

// withSession runs fn with an open service and a session for username,
// mapping failures to exit statuses.
func (a *app) withSession(ctx context.Context, username string, fn func(*services.LedgerService, *services.Session) error) subcommands.ExitStatus {
	if strings.TrimSpace(username) == "" {
		fmt.Fprintln(a.stderr, "Error: -user is required")
		return subcommands.ExitUsageError
	}
	svc, err := a.openService(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer svc.Close()

	sess, err := a.login(ctx, svc, username)
	if err != nil {
		return a.fail(err)
	}
	if err := fn(svc, sess); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}

func (a *app) fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(a.stderr, "Error: %s\n", userMessage(err))
	return subcommands.ExitFailure
}

func (a *app) money(v float64) string {
	return moneyIn(v, a.cfg.Currency)
}
