package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/agent"
	"github.com/ziadkadry99/docqa/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question",
	Long: `Runs one agent turn. The agent searches the indexed documents first and
falls back to a cited web answer when they do not cover the question.
Pass --thread to continue a conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("thread", "", "conversation thread id (a new one is created when empty)")
	askCmd.Flags().Bool("stream", false, "print the answer and tool calls as they happen")
	askCmd.Flags().Bool("json", false, "output the reply as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	threadID, _ := cmd.Flags().GetString("thread")
	stream, _ := cmd.Flags().GetBool("stream")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	query := strings.Join(args, " ")

	a, err := openApp(ctx, app.Components{Chat: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if stream && !jsonOutput {
		return streamTurn(cmd, a.Agent.Stream(ctx, query, threadID))
	}

	reply, err := a.Agent.Invoke(ctx, query, threadID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}
	fmt.Fprintln(out, reply.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\nthread: %s (%d tool call(s), %d tokens)\n",
		reply.ThreadID, len(reply.Trace), reply.Usage.InputTokens+reply.Usage.OutputTokens)
	return nil
}

// streamTurn prints text deltas to stdout and tool activity to stderr.
func streamTurn(cmd *cobra.Command, events <-chan agent.Event) error {
	out, info := cmd.OutOrStdout(), cmd.ErrOrStderr()
	printed := ""
	var turnErr error

	for ev := range events {
		switch e := ev.(type) {
		case agent.TextDelta:
			printed = printDelta(out, printed, e.Text)
		case agent.ToolInvocation:
			fmt.Fprintf(info, "\n-> %s %s\n", e.Name, e.Args)
		case agent.ToolResult:
			if e.Rejected {
				fmt.Fprintf(info, "<- %s rejected: %s\n", e.Name, e.Payload)
			} else {
				fmt.Fprintf(info, "<- %s: %s\n", e.Name, truncate(strings.ReplaceAll(e.Payload, "\n", " "), 100))
			}
			printed = ""
		case agent.Final:
			if e.Text != printed {
				printDelta(out, printed, e.Text)
			}
			fmt.Fprintf(info, "\n\nthread: %s\n", e.ThreadID)
		case agent.ErrorEvent:
			turnErr = errors.New(e.Message)
		}
	}
	return turnErr
}

// printDelta writes the part of text not yet printed. Text that does not
// extend what was printed starts a new paragraph.
func printDelta(w io.Writer, printed, text string) string {
	if strings.HasPrefix(text, printed) {
		fmt.Fprint(w, text[len(printed):])
	} else {
		fmt.Fprint(w, "\n\n"+text)
	}
	return text
}
