package cmds

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/guru/pkg/api"
)

func NewContractsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "Print the JSON Schemas of every backend request and response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.ContractSchemas(api.NewContractReflector()))
		},
	}
}
