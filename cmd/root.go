/*
Copyright © 2025 11bDev

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/11bDev-FOB/fragout-sub000/internal/config"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/bluesky"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/mastodon"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/nostr"
	"github.com/11bDev-FOB/fragout-sub000/internal/fragout/twitter"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	"github.com/11bDev-FOB/fragout-sub000/internal/store"
	"github.com/spf13/cobra"
)

var (
	userFlag    string
	verboseFlag bool
)

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fragout",
		Short: "Fan one post out to Mastodon, Bluesky, X, and Nostr",
		Long: "fragout publishes the same update to every social platform you have " +
			"connected credentials for, reporting success or failure per platform.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logutil.SetVerbose(verboseFlag)
		},
		Example: `  fragout post --message "hello world" --image ./shot.png
  fragout post "Ship it!" --target mastodon --target nostr
  fragout verify
  fragout creds set mastodon instance_url=mastodon.social access_token=...`,
	}

	cmd.PersistentFlags().StringVar(&userFlag, "user", "default", "User to act as")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "V", false, "Enable debug logging")

	cmd.AddCommand(
		newPostCommand(),
		newVerifyCommand(),
		newCredsCommand(),
		newPlatformsCommand(),
		newLogCommand(),
	)

	return cmd
}

// buildRegistry registers every adapter under its stable platform id.
func buildRegistry(cfg *config.Config) (*fragout.Registry, error) {
	registry := fragout.NewRegistry()
	adapters := []fragout.Poster{
		mastodon.New(),
		bluesky.New(cfg.BlueskyPDSURL),
		twitter.New(),
		nostr.New(cfg.NostrRelays),
	}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// openEnv loads configuration and opens the local store.
func openEnv(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newPlatformsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List supported platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			for _, p := range registry.Platforms() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", p.ID, p.Name)
			}
			return nil
		},
	}
}
