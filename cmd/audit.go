package cmd

import (
	"encoding/json"
	"os"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/config"
	"github.com/spf13/cobra"
)

var auditLimit int

// auditCmd prints the newest audit entries of one account as JSON lines.
var auditCmd = &cobra.Command{
	Use:   "audit <account-id>",
	Short: "List the audit trail of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse()
		if err != nil {
			return err
		}
		st, err := openStores(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.audit.ListByAccount(cmd.Context(), args[0], auditLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of entries")
}
