package main

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func purgeTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired password reset and reactivation tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				tag, err := pool.Exec(cmd.Context(), `DELETE FROM user_tokens WHERE expires_at <= $1`, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("purge tokens: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired tokens\n", tag.RowsAffected())
				return nil
			})
		},
	}
}
