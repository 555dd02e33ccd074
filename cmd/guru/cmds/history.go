package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the reconstituted conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			if err := requireIdentity(s); err != nil {
				return err
			}

			state := s.State()
			if len(state.Conversations) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no history")
				return nil
			}
			for _, c := range state.Conversations {
				renderConversation(cmd.OutOrStdout(), c, full)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print every message")
	return cmd
}
