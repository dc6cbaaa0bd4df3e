package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptSecret reads one credential value with terminal echo disabled.
func promptSecret(cmd *cobra.Command, field string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("field %s needs a value (stdin is not a terminal, cannot prompt)", field)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", field)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	return string(value), nil
}

func newCredsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage stored platform credentials",
	}
	cmd.AddCommand(newCredsSetCommand(), newCredsRemoveCommand(), newCredsListCommand())
	return cmd
}

func newCredsSetCommand() *cobra.Command {
	var jsonFlag string

	cmd := &cobra.Command{
		Use:   "set <platform> [field=value...]",
		Short: "Store credentials for a platform",
		Long: "set stores a credential bag for the platform, either from " +
			"field=value arguments or a raw JSON object via --json. Field names " +
			"are platform-specific (for example instance_url and access_token " +
			"for Mastodon, handle and appPassword for Bluesky). A bare field " +
			"name without = prompts for the value with echo off, keeping " +
			"secrets out of shell history.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			platform := strings.ToLower(strings.TrimSpace(args[0]))

			var blob string
			switch {
			case jsonFlag != "":
				if len(args) > 1 {
					return errors.New("provide either --json or field=value arguments, not both")
				}
				var parsed map[string]any
				if err := json.Unmarshal([]byte(jsonFlag), &parsed); err != nil {
					return fmt.Errorf("invalid --json: %w", err)
				}
				blob = jsonFlag
			case len(args) > 1:
				fields := map[string]string{}
				for _, arg := range args[1:] {
					key, value, ok := strings.Cut(arg, "=")
					key = strings.TrimSpace(key)
					if key == "" {
						return fmt.Errorf("expected field=value, got %q", arg)
					}
					if !ok {
						prompted, err := promptSecret(cmd, key)
						if err != nil {
							return err
						}
						value = prompted
					}
					fields[key] = value
				}
				encoded, err := json.Marshal(fields)
				if err != nil {
					return err
				}
				blob = string(encoded)
			default:
				return errors.New("provide credentials as field=value arguments or --json")
			}

			cfg, st, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			registry, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			if _, ok := registry.Lookup(platform); !ok {
				return fmt.Errorf("unsupported platform %q", platform)
			}

			if err := st.UpsertCredentials(ctx, userFlag, platform, blob); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s credentials for user %s\n", platform, userFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonFlag, "json", "", "Credential bag as a JSON object")
	return cmd
}

func newCredsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <platform>",
		Short: "Remove stored credentials for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, st, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			platform := strings.ToLower(strings.TrimSpace(args[0]))
			if err := st.DeleteCredentials(ctx, userFlag, platform); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s credentials for user %s\n", platform, userFlag)
			return nil
		},
	}
}

func newCredsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List platforms with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, st, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			platforms, err := st.ListPlatforms(ctx, userFlag)
			if err != nil {
				return err
			}
			if len(platforms) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no credentials stored")
				return nil
			}
			for _, p := range platforms {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
