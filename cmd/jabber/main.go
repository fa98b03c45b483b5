// Package main is the entry point for the jabber terminal client.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/meszmate/jabber/internal/app"
	"github.com/meszmate/jabber/internal/config"
	"github.com/meszmate/jabber/internal/logging"
	"github.com/meszmate/jabber/internal/storage/sqlite"
	"github.com/meszmate/jabber/internal/ui"
	"github.com/meszmate/jabber/internal/ui/theme"
	"github.com/meszmate/jabber/internal/xmpp"
)

// set via ldflags
var version = "dev"

type options struct {
	configDir  string
	account    string
	logLevel   string
	disableTLS bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "jabber",
		Short:         "A terminal XMPP client",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config", "", "use this directory for configuration and data")
	flags.StringVar(&opts.account, "account", "", "account to connect on startup")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&opts.disableTLS, "disable-tls", false, "connect without STARTTLS")

	rootCmd.AddCommand(newAccountsCmd(&opts), newPasswdCmd(&opts))
	return rootCmd
}

func paths(opts *options) (*config.Paths, error) {
	if opts.configDir != "" {
		return config.PathsIn(opts.configDir), nil
	}
	return config.GetPaths()
}

func run(opts options) error {
	p, err := paths(&opts)
	if err != nil {
		return err
	}
	cfg, err := config.Load(p)
	if err != nil {
		return err
	}
	accounts, err := config.LoadAccounts(p)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.disableTLS {
		cfg.Connection.DisableTLS = true
	}

	log, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Format:  cfg.Logging.Format,
		Console: false,
	})
	if err != nil {
		return err
	}
	defer log.Close()
	logging.SetDefault(log)

	var store *sqlite.DB
	if cfg.Storage.SaveMessages {
		store, err = sqlite.New(cfg.General.DataDir)
		if err != nil {
			log.Warn("chat log disabled: %v", err)
		}
	}

	th := theme.Default()
	if cfg.UI.Theme != "" {
		if th, err = theme.Load(cfg.UI.Theme); err != nil {
			log.Warn("using default theme: %v", err)
			th = theme.Default()
		}
	}

	application := app.New(app.Options{
		Config:    cfg,
		Accounts:  accounts,
		Transport: xmpp.NewConn(log.With("component", "transport")),
		Store:     store,
		Logger:    log,
	})
	defer application.Close()
	application.PruneHistory()

	model := ui.NewModel(application, th.Styles())
	if opts.account != "" {
		_, err = application.Connect(opts.account)
	} else {
		_, err = application.AutoConnect()
	}
	if err != nil {
		log.Error("connect on startup: %v", err)
	}

	log.Info("jabber %s started", version)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func newAccountsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := paths(opts)
			if err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(accounts.Accounts) == 0 {
				fmt.Fprintln(out, "No accounts configured")
				return nil
			}
			for _, a := range accounts.Accounts {
				source := "file"
				if a.UseKeyring {
					source = "keyring"
				}
				fmt.Fprintf(out, "%-16s %-32s password: %s\n", a.Name, a.JID, source)
			}
			return nil
		},
	}
}

func newPasswdCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <account>",
		Short: "Store an account password in the OS keyring, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := paths(opts)
			if err != nil {
				return err
			}
			if err := p.EnsureDirectories(); err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(p)
			if err != nil {
				return err
			}
			account, ok := accounts.Find(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", app.ErrUnknownAccount, args[0])
			}

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := config.StorePassword(account.JID, password); err != nil {
				return err
			}

			account.UseKeyring = true
			account.Password = ""
			accounts.Put(account)
			if err := config.SaveAccounts(p, accounts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s stored in keyring\n", account.JID)
			return nil
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", config.ErrNoPassword
	}
	return password, nil
}
