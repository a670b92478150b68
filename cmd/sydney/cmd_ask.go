package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/harness"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/transcript"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one turn and stream the reply",
	Long: `Send one user turn and stream the assistant reply to stdout.

The prompt is read from the arguments, or from stdin when none are given.
With --transcript the file is used as the conversation context and is
rewritten with the new turns afterwards. With --workspace the transcript is
loaded from and saved to the transcript database.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("transcript", "t", "", "Transcript file used as context and updated after the turn")
	askCmd.Flags().StringP("workspace", "w", "", "Workspace whose saved transcript is continued")
	askCmd.Flags().String("image", "", "Image file to attach to the prompt")
	askCmd.Flags().Bool("no-search", false, "Ask the assistant not to search the web")
	askCmd.Flags().String("style", "", "Conversation style: creative, balanced or precise")
	askCmd.Flags().String("locale", "", "Locale such as en-US")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	flags := cmd.Flags()
	transcriptPath, _ := flags.GetString("transcript")
	workspace, _ := flags.GetString("workspace")
	imagePath, _ := flags.GetString("image")
	noSearch, _ := flags.GetBool("no-search")
	styleName, _ := flags.GetString("style")
	locale, _ := flags.GetString("locale")

	req := harness.TurnRequest{
		WorkspaceID: workspace,
		Prompt:      prompt,
		NoSearch:    noSearch,
		Locale:      locale,
	}
	if styleName != "" {
		if req.Style, err = chathub.ParseStyle(styleName); err != nil {
			return err
		}
	}

	switch {
	case transcriptPath != "":
		data, err := os.ReadFile(transcriptPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read transcript: %w", err)
		}
		req.Transcript = transcript.Parse(string(data))
	case workspace != "":
		if req.Transcript, err = a.orch.LoadWorkspace(ctx, workspace); err != nil {
			return fmt.Errorf("load workspace %s: %w", workspace, err)
		}
	}

	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if req.ImageURL, err = a.orch.AttachImage(ctx, filepath.Base(imagePath), data); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	res, turnErr := a.orch.RunTurn(ctx, req, printer(out, cmd.ErrOrStderr()))
	fmt.Fprintln(out)

	if res != nil && transcriptPath != "" {
		if err := os.WriteFile(transcriptPath, []byte(transcript.Serialize(res.Transcript)), 0o644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
	}
	if turnErr != nil {
		if errors.Is(turnErr, chathub.ErrCancelled) {
			a.logger.Info().Msg("turn cancelled")
			return nil
		}
		return turnErr
	}

	if res.Filtered {
		fmt.Fprintln(cmd.ErrOrStderr(), "[the reply was withheld by the service]")
	}
	for i, s := range res.Suggestions {
		fmt.Fprintf(out, "  %d. %s\n", i+1, s)
	}
	return nil
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return string(data), nil
}

// printer streams reply text to out and side-channel notes to status.
func printer(out, status io.Writer) harness.EventSink {
	wrote := false
	return func(ev chathub.Event) {
		switch e := ev.(type) {
		case chathub.SearchQuery:
			fmt.Fprintf(status, "Searching the web for: %s\n", e.Query)
		case chathub.GenerativeImage:
			fmt.Fprintf(status, "Generating image: %s\n", e.Prompt)
		case chathub.Loader:
			fmt.Fprintf(status, "%s\n", e.Status)
		case chathub.TextDelta:
			if e.NewBlock && wrote {
				fmt.Fprint(out, "\n\n")
			}
			fmt.Fprint(out, e.Text)
			wrote = true
		case chathub.ContentFiltered:
			if e.Revoked {
				fmt.Fprintln(status, "\n[message revoked]")
			}
		}
	}
}
