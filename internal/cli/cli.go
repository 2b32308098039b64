package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/fatih/color"
	urfave "github.com/urfave/cli"

	"github.com/grendel/clipseal/internal/agent"
	"github.com/grendel/clipseal/internal/bridge"
	"github.com/grendel/clipseal/internal/config"
	"github.com/grendel/clipseal/internal/logging"
	"github.com/grendel/clipseal/internal/scanner"
	"github.com/grendel/clipseal/pkg/audit"
	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/session"
	"github.com/grendel/clipseal/pkg/ui"
)

const appTitle = "clipseal - clipboard address integrity guard"

// Version is set with -ldflags at build time
var Version = "dev"

// DisplayHelp shows usage information for the application
func DisplayHelp(w io.Writer, cs *ui.ColorScheme) {
	ui.PrintHeader(w, cs, appTitle)

	ui.PrintSectionHeader(w, cs, "USAGE:")
	cs.Normal.Fprintln(w, "  clipseal [global options] command [arguments]")
	fmt.Fprintln(w)

	ui.PrintSectionHeader(w, cs, "COMMANDS:")
	ui.PrintOption(w, cs, "agent              ", "Run the clipboard monitor and the local bridge")
	ui.PrintOption(w, cs, "check <text>       ", "Detect and fingerprint an address offline")
	ui.PrintOption(w, cs, "bind <address>     ", "Bind an address through the running agent")
	ui.PrintOption(w, cs, "status             ", "Show the live binding")
	ui.PrintOption(w, cs, "unbind             ", "Drop the live binding")
	ui.PrintOption(w, cs, "scan <path>...     ", "List the addresses in text files")
	ui.PrintOption(w, cs, "audit-verify <path>", "Verify the hash chain of an audit log")
	fmt.Fprintln(w)

	ui.PrintSectionHeader(w, cs, "GLOBAL OPTIONS:")
	ui.PrintOption(w, cs, "--config  ", "YAML configuration file (default: built-in defaults)")
	ui.PrintOption(w, cs, "--env     ", "dotenv file loaded before the configuration (default: .env)")
	ui.PrintOption(w, cs, "--debug   ", "Enable debug logging")
	ui.PrintOption(w, cs, "--no-color", "Disable colored output")
	fmt.Fprintln(w)

	ui.PrintSectionHeader(w, cs, "EXAMPLES:")
	ui.PrintExample(w, cs, "clipseal agent --quarantine        ", "Overwrite tampered clipboards")
	ui.PrintExample(w, cs, "clipseal check 0xde709f21...       ", "Show chain, canonical form and fingerprint")
	ui.PrintExample(w, cs, "clipseal bind bc1qar0srrr7xfk...   ", "Copy an address as a trusted binding")
	ui.PrintExample(w, cs, "clipseal scan -r ~/addressbook     ", "Audit saved addresses and seed phrases")
	ui.PrintExample(w, cs, "clipseal audit-verify audit.log    ", "Detect edited or dropped audit lines")
	fmt.Fprintln(w)

	ui.PrintSectionHeader(w, cs, "DESCRIPTION:")
	cs.Normal.Fprintln(w, "")
	cs.Normal.Fprintln(w, "  clipseal binds every address copied through a protected path to a")
	cs.Normal.Fprintln(w, "  session fingerprint and blocks any paste whose address no longer")
	cs.Normal.Fprintln(w, "  matches it. Supported formats:")
	cs.Normal.Fprintln(w, "")
	cs.Normal.Fprintln(w, "  • EVM addresses with EIP-55 checksums")
	cs.Normal.Fprintln(w, "  • Bitcoin and Litecoin segwit, Lightning invoices (Bech32)")
	cs.Normal.Fprintln(w, "  • Bitcoin, Litecoin, Dogecoin and Solana (Base58)")
	fmt.Fprintln(w)
}

// App bundles the command line application with its streams
type App struct {
	*urfave.App

	in  io.Reader
	out io.Writer
	cs  *ui.ColorScheme
	cfg *config.AppConfig
}

// NewApp creates the clipseal command line application
func NewApp(in io.Reader, out, errOut io.Writer) *App {
	a := &App{in: in, out: out, cs: ui.DefaultColorScheme()}

	app := urfave.NewApp()
	app.Name = "clipseal"
	app.Version = Version
	app.Usage = "clipboard address integrity guard"
	app.Writer = out
	app.ErrWriter = errOut
	app.Flags = []urfave.Flag{
		urfave.StringFlag{
			Name:   "config",
			Usage:  "YAML configuration file",
			EnvVar: "CLIPSEAL_CONFIG",
		},
		urfave.StringFlag{
			Name:  "env",
			Value: ".env",
			Usage: "dotenv file loaded before the configuration",
		},
		urfave.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		urfave.BoolFlag{
			Name:  "no-color",
			Usage: "disable colored output",
		},
	}
	app.Before = a.before
	app.Action = func(c *urfave.Context) error {
		DisplayHelp(a.out, a.cs)
		return nil
	}
	app.Commands = []urfave.Command{
		{
			Name:  "agent",
			Usage: "run the clipboard monitor and the local bridge",
			Flags: []urfave.Flag{
				urfave.BoolFlag{
					Name:  "quarantine",
					Usage: "overwrite the clipboard after a tamper warning",
				},
			},
			Action: a.runAgent,
		},
		{
			Name:      "check",
			Usage:     "detect and fingerprint an address offline",
			ArgsUsage: "<text>",
			Action:    a.runCheck,
		},
		{
			Name:      "bind",
			Usage:     "bind an address through the running agent",
			ArgsUsage: "<address>",
			Flags: []urfave.Flag{
				urfave.BoolFlag{
					Name:  "yes",
					Usage: "skip the confirmation prompt",
				},
			},
			Action: a.runBind,
		},
		{
			Name:   "status",
			Usage:  "show the live binding",
			Action: a.runStatus,
		},
		{
			Name:   "unbind",
			Usage:  "drop the live binding",
			Action: a.runUnbind,
		},
		{
			Name:      "scan",
			Usage:     "list the addresses in text files",
			ArgsUsage: "<path>...",
			Flags: []urfave.Flag{
				urfave.BoolFlag{
					Name:  "r",
					Usage: "scan directories recursively",
				},
				urfave.IntFlag{
					Name:  "threads",
					Value: runtime.NumCPU(),
					Usage: "number of files scanned in parallel",
				},
				urfave.Int64Flag{
					Name:  "maxsize",
					Value: 64,
					Usage: "maximum file size in MB",
				},
			},
			Action: a.runScan,
		},
		{
			Name:      "audit-verify",
			Usage:     "verify the hash chain of an audit log",
			ArgsUsage: "<path>",
			Action:    a.runAuditVerify,
		},
	}

	a.App = app
	return a
}

func (a *App) before(c *urfave.Context) error {
	if c.GlobalBool("no-color") {
		color.NoColor = true
	}

	if err := config.LoadEnv(c.GlobalString("env")); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.GlobalBool("debug") {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	logging.InitDefault(a.App.ErrWriter, logging.ParseLevel(cfg.Logging.Level), color.NoColor)
	return nil
}

func (a *App) runAgent(c *urfave.Context) error {
	if c.Bool("quarantine") {
		a.cfg.Monitor.Quarantine = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ag, err := agent.Build(a.cfg, a.out, nil, agent.Deps{})
	if err != nil {
		return err
	}

	ui.PrintHeader(a.out, a.cs, appTitle)
	ui.PrintField(a.out, a.cs, "session", a.cs.Param, ag.Session.ID.String())
	ui.PrintField(a.out, a.cs, "token file", a.cs.Param, a.cfg.Bridge.TokenFile)
	ui.PrintField(a.out, a.cs, "binding ttl", a.cs.Param, a.cfg.Metadata.TTL.String())
	fmt.Fprintln(a.out)

	return ag.Run(ctx)
}

func (a *App) runCheck(c *urfave.Context) error {
	text := strings.Join(c.Args(), " ")
	if text == "" {
		return errors.New("check: missing <text>")
	}

	if crypto.ValidateBIP39SeedPhrase(text) {
		ui.PrintField(a.out, a.cs, "warning", a.cs.Warning, protocol.ReasonSeedPhrase.Message())
		return protocol.ErrSeedPhrase
	}

	sess, err := session.New(a.cfg.Session.ExecContext)
	if err != nil {
		return err
	}
	verifier, err := agent.NewVerifier(a.cfg, sess)
	if err != nil {
		return err
	}

	det := verifier.Detect(text)
	if det.IsNone() {
		ui.PrintField(a.out, a.cs, "result", a.cs.Normal, protocol.ReasonNotAnAddress.Message())
		return protocol.ErrNotAnAddress
	}

	d := det.UnsafeFromSome()
	ui.PrintField(a.out, a.cs, "chain", a.cs.Chain, d.Chain.String())
	ui.PrintField(a.out, a.cs, "detected", a.cs.Address, d.Raw)

	resolved, err := verifier.Resolve(d)
	if err != nil {
		reason := protocol.ReasonFor(err)
		ui.PrintField(a.out, a.cs, "rejected", a.cs.Error, fmt.Sprintf("%s: %s", reason, reason.Message()))
		return err
	}

	ui.PrintField(a.out, a.cs, "canonical", a.cs.Address, resolved.Canonical)
	ui.PrintField(a.out, a.cs, "fingerprint", a.cs.Fingerprint, resolved.Fingerprint.Short)
	return nil
}

func (a *App) runBind(c *urfave.Context) error {
	address := strings.TrimSpace(c.Args().First())
	if address == "" {
		return errors.New("bind: missing <address>")
	}

	if !c.Bool("yes") {
		ui.PrintField(a.out, a.cs, "address", a.cs.Address, address)
		a.cs.Warning.Fprint(a.out, "Type YES to bind this address: ")
		line, _ := bufio.NewReader(a.in).ReadString('\n')
		if strings.TrimSpace(line) != "YES" {
			return errors.New("bind: aborted")
		}
	}

	client, err := bridge.DialFiles(a.cfg.Bridge.TokenFile, a.cfg.Bridge.PortFile)
	if err != nil {
		return fmt.Errorf("agent not running? %w", err)
	}
	resp, err := client.Copy(context.Background(), address)
	if err != nil {
		return err
	}
	return a.printDecision(resp)
}

func (a *App) printDecision(resp bridge.DecisionResponse) error {
	switch resp.Action {
	case "allow":
		ui.PrintField(a.out, a.cs, "bound", a.cs.Success, resp.Content)
		ui.PrintField(a.out, a.cs, "chain", a.cs.Chain, resp.Chain)
		ui.PrintField(a.out, a.cs, "fingerprint", a.cs.Fingerprint, resp.Fingerprint)
		if resp.Degraded {
			ui.PrintField(a.out, a.cs, "degraded", a.cs.Warning, resp.Message)
		}
		return nil
	case "passthrough":
		ui.PrintField(a.out, a.cs, "result", a.cs.Normal, protocol.ReasonNotAnAddress.Message())
		return protocol.ErrNotAnAddress
	default:
		ui.PrintField(a.out, a.cs, "blocked", a.cs.Error, fmt.Sprintf("%s: %s", resp.Reason, resp.Message))
		return fmt.Errorf("bind blocked: %s", resp.Reason)
	}
}

func (a *App) runStatus(c *urfave.Context) error {
	client, err := bridge.DialFiles(a.cfg.Bridge.TokenFile, a.cfg.Bridge.PortFile)
	if err != nil {
		return fmt.Errorf("agent not running? %w", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		return err
	}

	if !status.Bound {
		msg := "no live binding"
		if status.Reason != protocol.ReasonNone {
			msg += " (" + string(status.Reason) + ")"
		}
		ui.PrintField(a.out, a.cs, "status", a.cs.Normal, msg)
		return nil
	}

	ui.PrintField(a.out, a.cs, "address", a.cs.Address, status.Address)
	ui.PrintField(a.out, a.cs, "chain", a.cs.Chain, status.Chain)
	ui.PrintField(a.out, a.cs, "fingerprint", a.cs.Fingerprint, status.Fingerprint)
	if status.ExpiresAt != nil {
		ui.PrintField(a.out, a.cs, "expires", a.cs.Normal, status.ExpiresAt.Local().Format("15:04:05"))
	}
	return nil
}

func (a *App) runUnbind(c *urfave.Context) error {
	client, err := bridge.DialFiles(a.cfg.Bridge.TokenFile, a.cfg.Bridge.PortFile)
	if err != nil {
		return fmt.Errorf("agent not running? %w", err)
	}
	if err := client.Unbind(context.Background()); err != nil {
		return err
	}
	ui.PrintField(a.out, a.cs, "status", a.cs.Success, "binding dropped")
	return nil
}

func (a *App) runAuditVerify(c *urfave.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("audit-verify: missing <path>")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := audit.Verify(f)
	if err != nil {
		ui.PrintField(a.out, a.cs, "verified", a.cs.Normal, fmt.Sprintf("%d lines", n))
		ui.PrintField(a.out, a.cs, "broken", a.cs.Error, err.Error())
		return err
	}

	ui.PrintField(a.out, a.cs, "verified", a.cs.Success, fmt.Sprintf("%d lines, chain intact", n))
	return nil
}

func (a *App) runScan(c *urfave.Context) error {
	roots := c.Args()
	if len(roots) == 0 {
		return errors.New("scan: missing <path>")
	}

	sess, err := session.New(a.cfg.Session.ExecContext)
	if err != nil {
		return err
	}
	verifier, err := agent.NewVerifier(a.cfg, sess)
	if err != nil {
		return err
	}

	s := scanner.New(verifier, scanner.Options{
		Workers:     c.Int("threads"),
		Recursive:   c.Bool("r"),
		MaxFileSize: c.Int64("maxsize") * 1024 * 1024,
	})
	result, err := s.Scan(context.Background(), roots...)
	if err != nil {
		return err
	}

	for _, f := range result.Findings {
		a.cs.Param.Fprintf(a.out, "%s:%d ", filepath.Base(f.File), f.Line)
		switch {
		case f.Reason == protocol.ReasonSeedPhrase:
			a.cs.Warning.Fprintln(a.out, f.Reason.Message())
		case !f.Valid():
			a.cs.Chain.Fprintf(a.out, "%-11s ", f.Chain)
			a.cs.Error.Fprintf(a.out, "%s ", f.Reason)
			a.cs.Normal.Fprintln(a.out, f.Raw)
		default:
			a.cs.Chain.Fprintf(a.out, "%-11s ", f.Chain)
			a.cs.Fingerprint.Fprintf(a.out, "%s ", f.Fingerprint)
			a.cs.Address.Fprintln(a.out, f.Canonical)
		}
	}

	message := fmt.Sprintf("Scan complete! %d findings in %d files", len(result.Findings), result.FilesScanned)
	if n := result.Invalid(); n > 0 {
		message += fmt.Sprintf(", %d rejected", n)
	}
	if result.FilesSkipped > 0 {
		message += fmt.Sprintf(", %d files skipped", result.FilesSkipped)
	}
	ui.PrintFooter(a.out, a.cs, message)
	return nil
}
