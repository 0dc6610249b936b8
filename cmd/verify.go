package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elisedb/bootstrap"
	"elisedb/provision"

	"github.com/spf13/cobra"
)

// ErrLayoutMismatch is returned by verify when the database differs from the plan
var ErrLayoutMismatch = errors.New("database layout does not match the plan")

// newVerifyCmd creates the 'verify' subcommand
func newVerifyCmd() *cobra.Command {
	var expectEmpty bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the persisted layout against the plan",
		Long: `Read back the application user, collections and indexes of the planned
database and report every difference. Indexes are matched by key and unique
flag, not by name. Exits non-zero when any difference is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sess, err := newSession()
			if err != nil {
				return err
			}
			defer sess.close()

			mongoDB, err := bootstrap.ConnectMongo(ctx, sess.cfg, sess.sugar)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer closeCancel()
				_ = mongoDB.Close(closeCtx)
			}()

			var opts []provision.VerifyOption
			if expectEmpty {
				opts = append(opts, provision.WithExpectEmpty())
			}

			v, err := provision.Verify(ctx, mongoDB.Admin(sess.plan.Database), sess.plan, opts...)
			if err != nil {
				return fmt.Errorf("failed to verify layout: %w", err)
			}

			sess.sugar.Infow("Layout verified",
				"database", v.Database,
				"findings", len(v.Findings))

			if outputJSON {
				if err := outputAsJSON(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			} else {
				renderVerification(cmd.OutOrStdout(), v)
			}

			if !v.OK() {
				return fmt.Errorf("%w: %d finding(s)", ErrLayoutMismatch, len(v.Findings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&expectEmpty, "expect-empty", false, "Also require every planned collection to be empty")

	return cmd
}
