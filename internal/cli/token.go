package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagelight/fanquest/internal/daemon"
	"github.com/stagelight/fanquest/internal/security"
)

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().BoolVar(&tokenHS256, "hs256", false, "Sign with the shared secret instead of the node key")
	rootCmd.AddCommand(tokenCmd)
}

var (
	tokenName  string
	tokenTTL   time.Duration
	tokenHS256 bool
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for local testing",
	Long: `Mint a bearer token the API accepts. By default the token is signed
with the node's Ed25519 key (keys/token.key under the data directory);
--hs256 signs with auth.jwt_secret instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	minter, err := newMinter(cfg.Auth, daemon.Home(), tokenHS256)
	if err != nil {
		return err
	}
	tok, err := minter.Mint(args[0], tokenName, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func newMinter(auth daemon.AuthConfig, home string, hs256 bool) (*security.Minter, error) {
	if hs256 {
		if auth.JWTSecret == "" {
			return nil, errors.New("auth.jwt_secret is not set")
		}
		return security.NewMinter([]byte(auth.JWTSecret), nil, auth.Issuer)
	}
	if !auth.UseNodeKey {
		return nil, errors.New("auth.use_node_key is off; pass --hs256 to use the shared secret")
	}
	kp, err := security.LoadOrCreateKeypair(home)
	if err != nil {
		return nil, fmt.Errorf("load node key: %w", err)
	}
	return security.NewMinter(nil, kp, auth.Issuer)
}
