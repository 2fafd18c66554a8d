package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/spf13/cobra"
)

type runner func(context.Context, func(context.Context, settlementdomain.Service) error) error

func newRootCmd(run runner) *cobra.Command {
	var actor string

	root := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate on event registration orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&actor, "actor", "admin:ordersctl", "actor recorded in the audit log")

	root.AddCommand(
		newMarkPaidCmd(run, &actor),
		newTransitionCmd(run, &actor, "refund", "Refund a paid order", orderdomain.OrderStatusRefunded),
		newTransitionCmd(run, &actor, "cancel", "Cancel a pending order", orderdomain.OrderStatusCancelled),
		newSweepCmd(run),
	)
	return root
}

func newMarkPaidCmd(run runner, actor *string) *cobra.Command {
	var (
		amount   int64
		currency string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "mark-paid <order-id|order-number>",
		Short: "Record an offline payment for a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := transitionRequest(args[0], orderdomain.OrderStatusPaid, *actor, reason)
			if cmd.Flags().Changed("amount") {
				req.Amount = &amount
			}
			if c := strings.TrimSpace(currency); c != "" {
				req.Currency = &c
			}
			return run(cmd.Context(), func(ctx context.Context, svc settlementdomain.Service) error {
				return printTransition(ctx, cmd, svc, req)
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount received in minor units; checked against the order total")
	cmd.Flags().StringVar(&currency, "currency", "", "currency of the amount received")
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason for the audit log")
	return cmd
}

func newTransitionCmd(run runner, actor *string, use, short string, target orderdomain.OrderStatus) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <order-id|order-number>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := transitionRequest(args[0], target, *actor, reason)
			return run(cmd.Context(), func(ctx context.Context, svc settlementdomain.Service) error {
				return printTransition(ctx, cmd, svc, req)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason for the audit log")
	return cmd
}

func newSweepCmd(run runner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending orders past their payment window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return run(cmd.Context(), func(ctx context.Context, svc settlementdomain.Service) error {
				expired, err := svc.ExpireOverdue(ctx, time.Now().UTC(), limit)
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d orders\n", expired)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum orders to expire in this run")
	return cmd
}

// transitionRequest accepts either an order id or an order number.
func transitionRequest(ref string, target orderdomain.OrderStatus, actor, reason string) settlementdomain.TransitionRequest {
	req := settlementdomain.TransitionRequest{
		Target: target,
		Source: settlementdomain.SourceManual,
		Actor:  strings.TrimSpace(actor),
		Reason: strings.TrimSpace(reason),
	}
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		req.OrderID = &id
	} else {
		req.OrderNumber = ref
	}
	return req
}

func printTransition(ctx context.Context, cmd *cobra.Command, svc settlementdomain.Service, req settlementdomain.TransitionRequest) error {
	result, err := svc.Transition(ctx, req)
	if err != nil {
		if errors.Is(err, settlementdomain.ErrReconciliationMismatch) {
			return fmt.Errorf("%w: recorded in the review queue", err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", result.Order.OrderNumber, result.From, result.Order.Status)
	return nil
}
