package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent post attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, st, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.RecentPosts(ctx, userFlag, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no post attempts recorded")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				status := "ok"
				if !e.Success {
					status = "fail"
				}
				fmt.Fprintf(out, "%s  %-10s %-4s chars=%d images=%t", e.At.Format("2006-01-02 15:04:05"), e.Platform, status, e.TextLength, e.HasImages)
				if e.Error != "" {
					fmt.Fprintf(out, "  %s", e.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of attempts to show")
	return cmd
}
