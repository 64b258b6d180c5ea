package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-tracker/internal/api"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed user token for local testing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("token"); err != nil {
			return err
		}
		tok, err := api.IssueToken(cfg.Auth.JWTSecret, tokenUser, tokenTTL, time.Now())
		if err != nil {
			return eris.Wrap(err, "issue token")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id placed in the sub claim (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
