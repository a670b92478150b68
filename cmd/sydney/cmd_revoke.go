package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/transcript"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Remove the last user message and everything after it",
	Long: `Remove the last user message, and the replies that followed it, from a
transcript file or a saved workspace. The removed message is printed so it
can be edited and sent again.`,
	RunE: runRevoke,
}

func init() {
	revokeCmd.Flags().StringP("transcript", "t", "", "Transcript file to edit in place")
	revokeCmd.Flags().StringP("workspace", "w", "", "Workspace whose saved transcript is edited")
}

func runRevoke(cmd *cobra.Command, args []string) error {
	transcriptPath, _ := cmd.Flags().GetString("transcript")
	workspace, _ := cmd.Flags().GetString("workspace")
	if (transcriptPath == "") == (workspace == "") {
		return errors.New("exactly one of --transcript or --workspace is required")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var turns []transcript.Turn
	if transcriptPath != "" {
		data, err := os.ReadFile(transcriptPath)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		turns = transcript.Parse(string(data))
	} else if turns, err = a.orch.LoadWorkspace(ctx, workspace); err != nil {
		return fmt.Errorf("load workspace %s: %w", workspace, err)
	}

	remaining, revoked, err := a.orch.Revoke(ctx, workspace, turns)
	if err != nil {
		return err
	}
	if transcriptPath != "" {
		if err := os.WriteFile(transcriptPath, []byte(transcript.Serialize(remaining)), 0o644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), revoked)
	return nil
}
