// Command voicechat is a terminal front end for the realtime voice-chat
// backend: it opens a voice session, prints the live transcript, and can
// query usage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pushback-ai/voicechat/internal/dotenv"
	"github.com/pushback-ai/voicechat/pkg/config"
	"github.com/pushback-ai/voicechat/pkg/modes"
	"github.com/pushback-ai/voicechat/pkg/transcript"
	voicechat "github.com/pushback-ai/voicechat/sdk"
)

var version = "dev"

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	var configPath string

	root := &cobra.Command{
		Use:     "voicechat",
		Short:   "Voice chat with an AI that pushes back on your thinking",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to voicechat.yaml")

	root.AddCommand(
		newConnectCmd(&configPath),
		newUsageCmd(&configPath),
		newModesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient(configPath string) (*voicechat.Client, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	client := voicechat.NewClient(
		voicechat.WithBaseURL(cfg.BaseURL),
		voicechat.WithAPIKey(cfg.APIKey),
		voicechat.WithLogger(slog.Default()),
	)
	return client, cfg, nil
}

func newConnectCmd(configPath *string) *cobra.Command {
	var modeID string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a realtime voice session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(*configPath)
			if err != nil {
				return err
			}
			if modeID == "" {
				modeID = cfg.Mode
			}
			if !modes.Known(modeID) {
				fmt.Fprintf(os.Stderr, "unknown mode %q, using %s\n", modeID, modes.Default().ID)
			}
			mode := modes.Get(modeID)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("backend not reachable: %w", err)
			}

			opts := []voicechat.SessionOption{
				voicechat.WithMode(mode.ID),
				voicechat.WithOnMessage(printMessage),
				voicechat.WithOnStateChange(printState),
			}
			if cfg.WebSocketURL != "" {
				opts = append(opts, voicechat.WithWebSocketURL(cfg.WebSocketURL))
			}
			session := client.NewSession(opts...)
			defer session.Close()

			fmt.Printf("mode: %s — %s\n", mode.Name, mode.Tagline)
			fmt.Println("connecting... (ctrl-c to hang up)")
			session.Connect(ctx)

			if snap := session.Snapshot(); snap.Err != "" {
				return fmt.Errorf("%s", snap.Err)
			}

			<-ctx.Done()
			fmt.Println("\nhanging up")
			return nil
		},
	}
	cmd.Flags().StringVar(&modeID, "mode", "", "conversation mode id (see 'voicechat modes')")
	return cmd
}

func newUsageCmd(configPath *string) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage for this client",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(*configPath)
			if err != nil {
				return err
			}
			info, err := client.Usage.Fetch(cmd.Context(), refresh)
			if err != nil {
				return fmt.Errorf("fetch usage: %w", err)
			}
			fmt.Printf("used:      %d / %d tokens\n", info.LastUsedTokens, info.TokensLimit)
			fmt.Printf("remaining: %d\n", info.TokensRemaining)
			fmt.Printf("total:     %d\n", info.TotalTokens)
			fmt.Printf("resets:    %s\n", voicechat.FormatResetTime(info.ResetAt))
			if info.LimitExceeded {
				fmt.Println("limit exceeded")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the usage cache")
	return cmd
}

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List conversation modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range modes.All() {
				marker := " "
				if m.ID == modes.Default().ID {
					marker = "*"
				}
				fmt.Printf("%s %-18s %s — %s\n", marker, m.ID, m.Name, m.Tagline)
			}
			return nil
		},
	}
}

func printMessage(msg transcript.Message) {
	fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
}

func printState(snap voicechat.Snapshot) {
	switch {
	case snap.Err != "":
		fmt.Fprintf(os.Stderr, "! %s\n", snap.Err)
	case snap.Connected:
		fmt.Println("connected — start talking")
	}
}
