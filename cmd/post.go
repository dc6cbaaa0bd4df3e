package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/11bDev-FOB/fragout-sub000/internal/fragout"
	"github.com/11bDev-FOB/fragout-sub000/internal/logutil"
	"github.com/spf13/cobra"
)

var (
	messageFlag string
	imagePaths  []string
	imageAlt    string
	targetsFlag []string
	relaysFlag  string
	dryRun      bool
)

const defaultAltText = "Image attached via fragout"

func newPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post [message]",
		Short: "Publish a message to your connected platforms",
		Long: "post sends one message to every requested platform using the " +
			"credentials stored for --user. Without --target it posts to every " +
			"platform that has stored credentials.",
		RunE: runPost,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringSliceVar(&imagePaths, "image", nil, "Path to an image to attach (repeatable)")
	cmd.Flags().StringVar(&imageAlt, "alt-text", "", "Alternative text to describe the images")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", nil, "Platforms to post to (default: all connected)")
	cmd.Flags().StringVar(&relaysFlag, "relays", "", "Nostr relay override for this post")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	return cmd
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
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

	targets := targetsFlag
	if len(targets) == 0 {
		targets, err = st.ListPlatforms(ctx, userFlag)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			return errors.New("no credentials stored; connect a platform with `fragout creds set`")
		}
	}

	content := fragout.PostContent{
		Text:     message,
		Metadata: map[string]string{},
	}
	if relaysFlag != "" {
		content.Metadata["relays"] = relaysFlag
	}
	for _, path := range imagePaths {
		img, err := loadImage(path)
		if err != nil {
			return err
		}
		content.Images = append(content.Images, img)
	}

	if dryRun {
		for _, target := range targets {
			fmt.Fprintf(cmd.OutOrStdout(), "[dry-run] would post to %s: %q\n", target, content.Text)
		}
		for _, path := range imagePaths {
			fmt.Fprintf(cmd.OutOrStdout(), "[dry-run] image: %s\n", path)
		}
		return nil
	}

	dispatcher := fragout.NewDispatcher(registry, st, fragout.DispatcherOptions{
		PostLog: st,
		Timeout: cfg.AttemptTimeout,
	})
	defer dispatcher.Close()

	report, err := dispatcher.Dispatch(ctx, userFlag, content, targets)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, target := range targets {
		result, ok := report.Results[strings.ToLower(strings.TrimSpace(target))]
		if !ok {
			continue
		}
		if result.Success {
			fmt.Fprintf(out, "posted to %s", target)
			if result.URL != "" {
				fmt.Fprintf(out, " (%s)", result.URL)
			}
			fmt.Fprintln(out)
		} else {
			fmt.Fprintf(out, "failed on %s: %s\n", target, result.Error)
		}
	}
	fmt.Fprintf(out, "status: %s\n", report.Status)

	if report.Status != fragout.StatusCompleted {
		return errors.New("one or more platforms failed")
	}
	return nil
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		info, err := file.Stat()
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if (info.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			message = strings.TrimSpace(string(data))
		}
	}

	if message == "" {
		return "", errors.New("message is required")
	}

	return message, nil
}

func loadImage(path string) (fragout.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fragout.Image{}, fmt.Errorf("read image %q: %w", path, err)
	}

	alt := strings.TrimSpace(imageAlt)
	if alt == "" {
		alt = defaultAltText
	}

	logutil.Debugf("loaded image: path=%s bytes=%d", path, len(data))
	return fragout.Image{Data: data, AltText: alt}, nil
}
