package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/beacon/internal/api/auth"
)

var (
	tokenSubject string
	tokenName    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Sign a bearer token with the configured auth.jwt_secret (or $` + JWTSecretEnv + `).
The subject is recorded as the actor on acknowledge and resolve.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := DefaultConfig()
		if configFile != "" {
			var err error
			if cfg, err = LoadConfig(configFile); err != nil {
				return err
			}
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("no JWT secret: set auth.jwt_secret or " + JWTSecretEnv)
		}

		ttl := tokenTTL
		if ttl == 0 {
			ttl = mustDuration(cfg.Auth.TokenTTL)
		}
		token, err := auth.NewJWTService([]byte(cfg.Auth.JWTSecret), ttl).GenerateToken(tokenSubject, tokenName)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, e.g. a user or bot name")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}
