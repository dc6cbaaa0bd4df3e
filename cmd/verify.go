package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [platform...]",
		Short: "Test stored credentials against each platform",
		Long: "verify runs each platform's lightweight connection test. Nothing is " +
			"posted anywhere.",
		RunE: runVerify,
	}
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, st, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	records, err := st.GetCredentials(ctx, userFlag)
	if err != nil {
		return err
	}
	stored := map[string]string{}
	for _, rec := range records {
		stored[rec.Platform] = rec.Ciphertext
	}

	// Same normalization the dispatcher applies to --target.
	targets := make([]string, 0, len(args))
	for _, arg := range args {
		if t := strings.ToLower(strings.TrimSpace(arg)); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		for platform := range stored {
			targets = append(targets, platform)
		}
		sort.Strings(targets)
	}
	if len(targets) == 0 {
		return errors.New("no credentials stored; connect a platform with `fragout creds set`")
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, target := range targets {
		poster, ok := registry.Lookup(target)
		if !ok {
			fmt.Fprintf(out, "%-10s unsupported platform\n", target)
			failed = true
			continue
		}

		blob, ok := stored[target]
		if !ok {
			fmt.Fprintf(out, "%-10s no credentials stored\n", target)
			failed = true
			continue
		}

		creds, err := fragout.ParseCredentials(blob)
		if err != nil {
			fmt.Fprintf(out, "%-10s %v\n", target, err)
			failed = true
			continue
		}

		info, err := poster.TestConnection(ctx, creds)
		if err != nil {
			fmt.Fprintf(out, "%-10s FAIL: %v\n", target, err)
			failed = true
			continue
		}
		fmt.Fprintf(out, "%-10s OK: %s\n", target, info.Message)
	}

	if failed {
		return errors.New("one or more connection tests failed")
	}
	return nil
}
