package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Jeffrey0117/Ytify/internal/service"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ytify %s\n", service.Version)
		},
	}
}
