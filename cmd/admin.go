package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	adminUser   string
	adminRevoke bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Grant or revoke the admin role for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetAdmin(ctx, adminUser, !adminRevoke); err != nil {
			return eris.Wrap(err, "set admin")
		}
		zap.L().Info("admin role updated", zap.String("user", adminUser), zap.Bool("admin", !adminRevoke))
		return nil
	},
}

func init() {
	adminCmd.Flags().StringVar(&adminUser, "user", "", "user id (required)")
	adminCmd.Flags().BoolVar(&adminRevoke, "revoke", false, "remove the role instead of granting it")
	_ = adminCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(adminCmd)
}
