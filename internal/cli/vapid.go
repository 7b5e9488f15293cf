package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/stockbook/internal/push"
)

func newVAPIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "VAPID key management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new VAPID key pair as environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "STOCKBOOK_VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "STOCKBOOK_VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	})
	return cmd
}
