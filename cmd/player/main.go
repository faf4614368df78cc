// Command player is a headless Red Card client: it joins a table and bets on
// every round, for scripted play and load tests.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/janpfeifer/RedCard/internal/config"
	"github.com/janpfeifer/RedCard/internal/session"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFiles   []string
		overrides  config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "player",
		Short:         "Headless Red Card player",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFiles...)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("server") {
				cfg.ServerURL = overrides.ServerURL
				if !flags.Changed("api") {
					if cfg.APIURL, err = config.APIURLFromServer(cfg.ServerURL); err != nil {
						return err
					}
				}
			}
			if flags.Changed("api") {
				cfg.APIURL = overrides.APIURL
			}
			if flags.Changed("name") {
				cfg.Name = overrides.Name
			}
			if flags.Changed("bet") {
				cfg.BetAmount = overrides.BetAmount
			}
			if flags.Changed("card") {
				cfg.CardIndex = overrides.CardIndex
			}
			if flags.Changed("rounds") {
				cfg.Rounds = overrides.Rounds
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Name == "" {
				return errors.New("a player name is required: --name or REDCARD_NAME")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			sess := session.New(ctx, session.FromConfig(cfg))
			defer func() { _ = sess.Close() }()
			return newPlayer(cfg, sess).play(ctx)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringSliceVar(&envFiles, "env-file", nil, "Files loaded into the environment (default: .env if present)")
	flags.StringVar(&overrides.ServerURL, "server", "", "Websocket URL of the server")
	flags.StringVar(&overrides.APIURL, "api", "", "Base URL serving /game/constants")
	flags.StringVarP(&overrides.Name, "name", "n", "", "Player name")
	flags.IntVar(&overrides.BetAmount, "bet", 0, "Bet amount per round")
	flags.IntVar(&overrides.CardIndex, "card", 0, "Card to bet on, 1-based (0: let the auto-bet pick)")
	flags.IntVar(&overrides.Rounds, "rounds", 0, "Rounds to play (0: forever)")

	// klog flags, e.g. -v=2.
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
	return rootCmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		klog.Errorf("player: %v", err)
	}
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
