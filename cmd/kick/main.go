package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/go-kick/kick"
	"github.com/go-kick/kick/tui"
)

var (
	flagClientID     string
	flagClientSecret string
	flagRedirectURI  string
	flagTokenFile    string
	flagTimeout      time.Duration
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "kick",
		Short:         "Authenticate against Kick and manage your channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagClientID, "client-id", "",
		"OAuth client ID (or KICK_CLIENT_ID env)")
	pf.StringVar(&flagClientSecret, "client-secret", "",
		"OAuth client secret (or KICK_CLIENT_SECRET env)")
	pf.StringVar(&flagRedirectURI, "redirect-uri", "",
		"redirect URI registered with the app (default "+kick.DefaultRedirectURI+")")
	pf.StringVar(&flagTokenFile, "token-file", "",
		"token storage file (default "+kick.DefaultTokenFile+" or KICK_TOKEN_FILE env)")
	pf.DurationVar(&flagTimeout, "timeout", 0,
		"how long to wait for the browser authorization (default 5m)")

	root.AddCommand(loginCmd(), userCmd(), channelCmd(), updateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfig resolves a value with flag > env > default priority.
func getConfig(flagValue, envKey, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

func buildConfig(d tui.Displayer) (kick.Config, error) {
	cfg := kick.Config{
		ClientID:     getConfig(flagClientID, "KICK_CLIENT_ID", ""),
		ClientSecret: getConfig(flagClientSecret, "KICK_CLIENT_SECRET", ""),
		RedirectURI:  getConfig(flagRedirectURI, "KICK_REDIRECT_URI", ""),
		TokenFile:    getConfig(flagTokenFile, "KICK_TOKEN_FILE", ""),
		AuthTimeout:  flagTimeout,
		Display:      d,
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return cfg, fmt.Errorf(
			"client credentials are required: pass --client-id/--client-secret " +
				"or set KICK_CLIENT_ID/KICK_CLIENT_SECRET")
	}
	return cfg, nil
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// withDisplay runs fn behind either the BubbleTea TUI or a plain text
// displayer, depending on whether stderr is interactive.
func withDisplay(fn func(ctx context.Context, d tui.Displayer) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !isTTY() {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		if err := fn(ctx, d); err != nil {
			d.Fatal(err)
			return err
		}
		return nil
	}

	// Run TUI program on stderr so stdout pipes are not corrupted.
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(tui.NewModel(), tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	d := tui.NewProgramDisplayer(p)
	d.Banner()
	runErr := fn(ctx, d)
	if runErr != nil {
		d.Fatal(runErr)
	}
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return runErr
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize this machine and store tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDisplay(func(ctx context.Context, d tui.Displayer) error {
				cfg, err := buildConfig(d)
				if err != nil {
					return err
				}
				auth, err := kick.NewAuthenticator(cfg)
				if err != nil {
					return err
				}
				token, err := auth.Token(ctx, nil)
				if err != nil {
					return err
				}

				preview := token
				if len(preview) > 50 {
					preview = preview[:50]
				}
				var expiresIn time.Duration
				if ts, err := auth.Current(); err == nil && ts != nil {
					expiresIn = time.Until(ts.Expiry())
				}
				d.Done(preview, expiresIn)
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDisplay(func(ctx context.Context, d tui.Displayer) error {
				client, err := newClient(d)
				if err != nil {
					return err
				}
				user, err := client.GetUser(ctx)
				if err != nil {
					return err
				}
				return printJSON(user)
			})
		},
	}
}

func channelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channel",
		Short: "Show the broadcaster's channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDisplay(func(ctx context.Context, d tui.Displayer) error {
				client, err := newClient(d)
				if err != nil {
					return err
				}
				channel, err := client.GetChannel(ctx)
				if err != nil {
					return err
				}
				return printJSON(channel)
			})
		},
	}
}

func updateCmd() *cobra.Command {
	var (
		title      string
		categoryID int64
		tags       []string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the channel's title, category, or tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDisplay(func(ctx context.Context, d tui.Displayer) error {
				var update kick.ChannelUpdate
				if cmd.Flags().Changed("title") {
					update.StreamTitle = &title
				}
				if cmd.Flags().Changed("category-id") {
					update.CategoryID = &categoryID
				}
				if cmd.Flags().Changed("tags") {
					update.CustomTags = tags
				}

				client, err := newClient(d)
				if err != nil {
					return err
				}
				if err := client.UpdateChannel(ctx, update); err != nil {
					return err
				}
				fmt.Println("Channel updated.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new stream title")
	cmd.Flags().Int64Var(&categoryID, "category-id", 0, "new category ID")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "replacement custom tags")
	return cmd
}

func newClient(d tui.Displayer) (*kick.Client, error) {
	cfg, err := buildConfig(d)
	if err != nil {
		return nil, err
	}
	return kick.New(cfg)
}

// printJSON writes v to stdout; progress output stays on stderr.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
