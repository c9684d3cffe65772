package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/anomaly"
	anomalystore "rollcall/internal/anomaly/store"
	jwttoken "rollcall/internal/jwt_token"
	"rollcall/internal/platform/config"
	"rollcall/internal/platform/logger"
	"rollcall/internal/platform/postgres"
)

var (
	operatorAuthority string
	reviewUnreviewed  bool
	reviewLimit       int
	tokenTTL          time.Duration
)

func init() {
	rootCmd.AddCommand(unlockCmd, reviewCmd, tokenCmd)

	unlockCmd.Flags().StringVar(&operatorAuthority, "authority", "", "Authority performing the unlock")
	_ = unlockCmd.MarkFlagRequired("authority")

	reviewCmd.Flags().StringVar(&operatorAuthority, "authority", "", "Authority marking the anomaly reviewed")
	reviewCmd.Flags().BoolVar(&reviewUnreviewed, "list", false, "List unreviewed anomalies instead of reviewing one")
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 0, "Maximum anomalies to list (0 uses the default)")

	tokenCmd.Flags().StringVar(&operatorAuthority, "authority", "", "Authority the token is issued to")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("authority")
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <session-id> <identity-id>",
	Short: "Clear a lockout for one identity in one session",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnlock,
}

var reviewCmd = &cobra.Command{
	Use:   "review [anomaly-id]",
	Short: "Mark an anomaly reviewed, or list unreviewed anomalies with --list",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReview,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an authority bearer token signed with ROLLCALL_JWT_SIGNING_KEY",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

// openTracker connects the strike tracker to the configured database. The
// operator commands need shared state, so the in-memory fallback is refused.
func openTracker(ctx context.Context) (*anomaly.Tracker, func(), error) {
	cfg := config.FromEnv()
	if cfg.Postgres.DSN == "" {
		return nil, nil, errors.New("DATABASE_URL is required for operator commands")
	}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("load policy: %w", err)
	}
	tracker, err := anomaly.New(anomalystore.NewPostgres(db),
		anomaly.WithThreshold(policy.Strikes.Threshold),
		anomaly.WithLogger(logger.New()),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return tracker, func() { _ = db.Close() }, nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	tracker, closeDB, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	rec, err := tracker.Unlock(cmd.Context(), anomaly.Key{SessionID: args[0], IdentityID: args[1]}, operatorAuthority)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runReview(cmd *cobra.Command, args []string) error {
	if !reviewUnreviewed && len(args) == 0 {
		return errors.New("an anomaly id or --list is required")
	}
	tracker, closeDB, err := openTracker(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	if reviewUnreviewed {
		records, err := tracker.ListUnreviewed(cmd.Context(), reviewLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	}
	if operatorAuthority == "" {
		return errors.New("--authority is required to review")
	}
	rec, err := tracker.MarkReviewed(cmd.Context(), args[0], operatorAuthority)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	token, err := tokens.GenerateAuthorityToken(operatorAuthority, tokenTTL)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"authority_id": operatorAuthority,
		"token":        token,
		"expires_in":   int(tokenTTL.Seconds()),
	})
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
