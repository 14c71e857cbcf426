package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"verified-checkout/internal/database"
	"verified-checkout/internal/service"
	"verified-checkout/internal/webhook"
	"verified-checkout/internal/worker"

	"github.com/spf13/cobra"
)

func simulateCmd() *cobra.Command {
	var (
		count       int
		declineRate float64
		lostRate    float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive checkouts end to end against the mock gateway",
		Long: `Create sessions against an in-memory gateway, settle each one, deliver a
signed notification for most of them and leave the rest for the sweeper.
Writes to the configured database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, count, declineRate, lostRate)
		},
	}

	cmd.Flags().IntVar(&count, "count", 20, "number of checkouts")
	cmd.Flags().Float64Var(&declineRate, "decline-rate", 0.3, "share of payers who decline")
	cmd.Flags().Float64Var(&lostRate, "lost-rate", 0.2, "share of notifications never delivered")
	return cmd
}

func runSimulate(cmd *cobra.Command, count int, declineRate, lostRate float64) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Gateway.Mode = "mock"
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost" + cfg.HTTPAddr
	}
	if cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = "simulate"
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := database.Migrate(ctx, a.db.DB()); err != nil {
		return err
	}

	auth := webhook.NewAuthenticator(cfg.Webhook.Secret)
	out := cmd.OutOrStdout()
	rule := strings.Repeat("-", 51)

	fmt.Fprintf(out, "--- STARTING SIMULATION (%d CHECKOUTS) ---\n", count)
	for i := 0; i < count; i++ {
		userID := fmt.Sprintf("sim-user-%d", i+1)
		sess, err := a.sessions.CreateSession(ctx, service.CreateSessionRequest{
			Amount:    "100.00",
			Currency:  "ETB",
			Email:     userID + "@example.com",
			FirstName: "Sim",
			LastName:  fmt.Sprintf("User%d", i+1),
			UserID:    userID,
		})
		if err != nil {
			fmt.Fprintf(out, "[%d] create failed: %v\n", i+1, err)
			continue
		}

		outcome := "success"
		if rand.Float64() < declineRate {
			outcome = "declined"
		}
		a.mock.Complete(sess.TxRef, outcome)
		fmt.Fprintf(out, "[%d] %s paid=%s ... ", i+1, sess.TxRef, outcome)

		if rand.Float64() < lostRate {
			fmt.Fprintln(out, "NOTIFICATION LOST")
		} else {
			body := []byte(fmt.Sprintf(`{"tx_ref":%q,"status":%q}`, sess.TxRef, outcome))
			if err := auth.Verify(body, auth.Sign(body)); err != nil {
				return err
			}
			if _, err := a.reconciler.Reconcile(ctx, body); err != nil {
				fmt.Fprintf(out, "FAILED: %v\n", err)
			} else {
				fmt.Fprintln(out, "DELIVERED")
			}
		}

		fresh, err := a.payments.FindByTxRef(ctx, sess.TxRef)
		if err == nil {
			fmt.Fprintf(out, "    -> DB Status: %s\n", fresh.Status)
		}
		fmt.Fprintln(out, rule)
	}

	// Everything left pending is a lost notification; sweep with no age
	// threshold so it is picked up immediately.
	sweeper := worker.NewReconciliationWorker(a.payments, a.reconciler, time.Second, 0, count, logger)
	stats, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sweep: scanned=%d applied=%d in_progress=%d failed=%d\n",
		stats.Scanned, stats.Applied, stats.InProgress, stats.Failed)
	return nil
}
