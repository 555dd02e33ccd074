package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/guru/pkg/conversation"
)

func modeFromFlag(research bool) conversation.Mode {
	if research {
		return conversation.ModeResearch
	}
	return conversation.ModeGeneral
}

func NewSendCommand() *cobra.Command {
	var (
		research bool
		page     int
	)

	cmd := &cobra.Command{
		Use:   "send <text...>",
		Short: "Send one message and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if err := requireIdentity(s); err != nil {
				return err
			}

			if page > 0 && !openPage(s, page) {
				return errors.Errorf("no conversation on page %d", page)
			}

			turn := s.SendMessage(ctx, strings.Join(args, " "), modeFromFlag(research))
			if turn == nil {
				return errors.New("nothing to send")
			}
			res, err := turn.Wait()
			if err != nil {
				return err
			}

			c, ok := s.State().Conversation(res.ConversationID)
			if !ok {
				return errors.New("conversation disappeared")
			}
			if m, ok := c.Message(res.AssistantMessageID); ok {
				renderMessage(cmd.OutOrStdout(), *m)
			}
			if res.PrimaryErr != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "backend error: %v\n", res.PrimaryErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&research, "research", false, "Use research mode (generated tutorial plus videos)")
	cmd.Flags().IntVar(&page, "page", 0, "Continue the conversation on this history page")
	return cmd
}
