package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewIdentityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show or create the local identity",
	}
	cmd.AddCommand(newIdentityShowCommand(), newIdentitySetCommand())
	return cmd
}

func newIdentityShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			id := s.State().Identity
			if id.IsZero() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no identity")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.DisplayName, id.StableUsername)
			return nil
		},
	}
}

func newIdentitySetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name...>",
		Short: "Register a display name and store the resulting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			id := s.UpdateIdentity(cmd.Context(), strings.Join(args, " "))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), %d conversations in history\n",
				id.DisplayName, id.StableUsername, len(s.State().Conversations))
			return nil
		},
	}
}
