package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/speech"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio-file>",
	Short: "Convert speech to text",
	Long:  `Transcribes an audio file. With --ask the transcript is sent to the assistant as a question.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		ask, _ := cmd.Flags().GetBool("ask")

		a, err := openApp(ctx, app.Components{Chat: ask, Speech: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Speech == nil {
			return fmt.Errorf("speech is not configured: set OPENAI_API_KEY")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		text, err := a.Speech.Recognize(ctx, f, filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "No speech recognized.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)

		if !ask {
			return nil
		}
		reply, err := a.Agent.Invoke(ctx, text, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", reply.Text)
		return nil
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak <text>",
	Short: "Convert text to speech (mp3)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		output, _ := cmd.Flags().GetString("output")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		s, err := speech.NewFromConfig(cfg.Speech, logger.Named("speech"))
		if err != nil {
			return err
		}
		audio, err := s.Synthesize(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, audio, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(audio), output)
		return nil
	},
}

func init() {
	transcribeCmd.Flags().Bool("ask", false, "ask the assistant the transcribed question")
	speakCmd.Flags().StringP("output", "o", "speech.mp3", "output file")
	rootCmd.AddCommand(transcribeCmd, speakCmd)
}
