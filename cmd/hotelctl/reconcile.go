package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	kindCapture = "capture"
	kindRefund  = "refund"
)

type reconciliation struct {
	ID            int64      `yaml:"id"`
	PaymentID     int64      `yaml:"payment_id"`
	ReservationID int64      `yaml:"reservation_id"`
	Status        string     `yaml:"payment_status"`
	Kind          string     `yaml:"kind"`
	ProviderRef   string     `yaml:"provider_ref,omitempty"`
	Reason        string     `yaml:"reason"`
	CreatedAt     time.Time  `yaml:"created_at"`
	ResolvedAt    *time.Time `yaml:"resolved_at,omitempty"`
	Resolution    string     `yaml:"resolution,omitempty"`
}

// checkResolution rejects applying an upstream operation the entry does not
// describe.
func checkResolution(kind string, applyRefund, applyCapture bool) error {
	switch {
	case applyRefund && applyCapture:
		return errors.New("--apply-refund and --apply-capture are mutually exclusive")
	case applyRefund && kind != kindRefund:
		return fmt.Errorf("--apply-refund needs a refund entry, this one is a %s", kind)
	case applyCapture && kind != kindCapture:
		return fmt.Errorf("--apply-capture needs a capture entry, this one is a %s", kind)
	}
	return nil
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and close payments flagged for manual reconciliation",
	}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Print flagged payments as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				rows, err := pool.Query(cmd.Context(), `
					SELECT r.id, r.payment_id, p.reservation_id, p.status,
						r.kind, COALESCE(r.provider_ref, ''), r.reason, r.created_at,
						r.resolved_at, COALESCE(r.resolution, '')
					FROM payment_reconciliations r
					JOIN payments p ON p.id = r.payment_id
					WHERE $1 OR r.resolved_at IS NULL
					ORDER BY r.created_at`, all)
				if err != nil {
					return fmt.Errorf("list reconciliations: %w", err)
				}
				defer rows.Close()

				var out []reconciliation
				for rows.Next() {
					var rec reconciliation
					if err := rows.Scan(&rec.ID, &rec.PaymentID, &rec.ReservationID, &rec.Status,
						&rec.Kind, &rec.ProviderRef, &rec.Reason, &rec.CreatedAt, &rec.ResolvedAt, &rec.Resolution); err != nil {
						return err
					}
					out = append(out, rec)
				}
				if err := rows.Err(); err != nil {
					return err
				}
				if len(out) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to reconcile")
					return nil
				}

				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(out)
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include resolved entries")

	var note string
	var applyRefund, applyCapture bool
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a flagged payment as reconciled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			note = strings.TrimSpace(note)
			if note == "" {
				return fmt.Errorf("--note is required")
			}
			if applyRefund && applyCapture {
				return checkResolution("", applyRefund, applyCapture)
			}
			return withPool(cmd.Context(), func(pool *pgxpool.Pool) error {
				return resolveReconciliation(cmd, pool, id, note, applyRefund, applyCapture)
			})
		},
	}
	resolve.Flags().StringVar(&note, "note", "", "what was done to reconcile the payment")
	resolve.Flags().BoolVar(&applyRefund, "apply-refund", false,
		"record the upstream refund locally and deactivate the reservation")
	resolve.Flags().BoolVar(&applyCapture, "apply-capture", false,
		"record the upstream PayPal capture locally and mark the payment Completed")

	cmd.AddCommand(list, resolve)
	return cmd
}

// resolveReconciliation closes the entry and, when asked, writes the capture
// or refund the provider already performed.
func resolveReconciliation(cmd *cobra.Command, pool *pgxpool.Pool, id int64, note string, applyRefund, applyCapture bool) error {
	ctx := cmd.Context()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var paymentID int64
	var kind, ref string
	err = tx.QueryRow(ctx, `
		UPDATE payment_reconciliations SET resolved_at = now(), resolution = $2
		WHERE id = $1 AND resolved_at IS NULL
		RETURNING payment_id, kind, COALESCE(provider_ref, '')`, id, note).Scan(&paymentID, &kind, &ref)
	if err != nil {
		return fmt.Errorf("reconciliation %d is not open: %w", id, err)
	}
	if err := checkResolution(kind, applyRefund, applyCapture); err != nil {
		return err
	}
	if (applyRefund || applyCapture) && ref == "" {
		return fmt.Errorf("reconciliation %d carries no provider reference", id)
	}

	switch {
	case applyRefund:
		var reservationID int64
		if err := tx.QueryRow(ctx, `
			UPDATE payments SET status = 'Refund', refund_date = now(), refund_id = $2, updated_at = now()
			WHERE id = $1 AND status <> 'Refund'
			RETURNING reservation_id`, paymentID, ref).Scan(&reservationID); err != nil {
			return fmt.Errorf("apply refund to payment %d: %w", paymentID, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE reservations SET active = FALSE WHERE id = $1`, reservationID); err != nil {
			return fmt.Errorf("deactivate reservation %d: %w", reservationID, err)
		}
	case applyCapture:
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET status = 'Completed', transaction_id = $2, payment_method = 'PayPal', updated_at = now()
			WHERE id = $1 AND status = 'Pending'`, paymentID, ref)
		if err != nil {
			return fmt.Errorf("apply capture to payment %d: %w", paymentID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("payment %d is no longer Pending", paymentID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reconciliation %d resolved\n", id)
	return nil
}
