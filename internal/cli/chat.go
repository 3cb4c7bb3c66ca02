package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"missioncontrol/internal/chat"
	"missioncontrol/internal/common"
	"missioncontrol/internal/errors"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the career companion",
	Long: `Send a message to the orchestrator, which routes it to the right agent.

With a message argument one turn is sent and the transcript is printed.
Without one, an interactive session reads a message per line from stdin
until EOF or "/exit".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

var (
	chatConfig common.CommandConfig
	chatResume string
)

func init() {
	addOutputFlags(chatCmd, &chatConfig)
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume id the conversation is about")
}

// boundResume is a fixed resume for a CLI chat
type boundResume string

func (b boundResume) ResumeID() string { return string(b) }

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	session := chat.NewSession(newBackendClient(cfg, logger), boundResume(chatResume), logger)

	if len(args) == 1 {
		return common.RunCommand(ctx, logger, newOutputHandler(logger), chatConfig, "chat",
			func(ctx context.Context) (chat.Transcript, error) {
				if _, err := session.Send(ctx, args[0]); err != nil {
					return chat.Transcript{}, err
				}
				return session.Transcript(), nil
			},
			nil,
		)
	}
	return chatLoop(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}

// chatLoop runs an interactive session. Failed turns are reported and the loop goes on.
func chatLoop(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer, logger *errors.Logger) error {
	greeting := session.Messages()[0]
	fmt.Fprintf(out, "%s: %s\n", chat.Meta(greeting.Agent).Label, greeting.Content)
	for _, prompt := range session.Prompts() {
		fmt.Fprintf(out, "  try: %s\n", prompt)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Chat turn failed", "error", err)
			if reply.Content == "" {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
		}
		fmt.Fprintf(out, "%s: %s\n", chat.Meta(reply.Agent).Label, reply.Content)
	}
}
