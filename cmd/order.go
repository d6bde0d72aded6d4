package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mbrandao/opchat/internal/output"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Inspect and manage production orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return orderListRun("")
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List orders, optionally filtered by code, client, or status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return orderListRun(strings.Join(args, " "))
	},
}

var orderShowCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Show one order with its parts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return orderShowRun(args[0])
	},
}

var orderDeleteCmd = &cobra.Command{
	Use:   "delete <code>",
	Short: "Delete an order, its parts, and its alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return orderDeleteRun(args[0])
	},
}

var partsCmd = &cobra.Command{
	Use:   "parts [query]",
	Short: "List parts across all orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return partsListRun(strings.Join(args, " "))
	},
}

func init() {
	orderCmd.AddCommand(orderListCmd)
	orderCmd.AddCommand(orderShowCmd)
	orderCmd.AddCommand(orderDeleteCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(partsCmd)
}

func orderListRun(query string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	orders, err := s.SearchOrders(rootCmd.Context(), query)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		ui.Info("No orders found")
		return nil
	}

	table := ui.Table([]string{"Code", "Client", "Delivery", "Total", "Status"})
	for _, o := range orders {
		table.Append([]string{
			output.Cyan(o.Code),
			o.ClientName,
			o.DeliveryDate,
			fmt.Sprintf("%.2f", o.TotalPrice),
			output.StatusColor(string(o.Status)),
		})
	}
	return table.Render()
}

func orderShowRun(code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := rootCmd.Context()

	o, err := s.GetOrder(ctx, code)
	if err != nil {
		return err
	}

	ui.Info("Order %s", output.Cyan(o.Code))
	fmt.Fprintf(ui.Out, "  Client:    %s\n", o.ClientName)
	fmt.Fprintf(ui.Out, "  Ordered:   %s\n", o.OrderDate)
	fmt.Fprintf(ui.Out, "  Delivery:  %s\n", o.DeliveryDate)
	fmt.Fprintf(ui.Out, "  Total:     %.2f (tax %.2f)\n", o.TotalPrice, o.Tax)
	fmt.Fprintf(ui.Out, "  Status:    %s\n", output.StatusColor(string(o.Status)))

	parts, err := s.GetOrderParts(ctx, code)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		ui.Info("No parts registered")
		return nil
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Part", "Progress", "Unit price", "Status"})
	for _, p := range parts {
		table.Append([]string{
			p.Name,
			output.ProgressColor(p.Produced, p.Quantity),
			fmt.Sprintf("%.2f", p.UnitPrice),
			output.StatusColor(string(p.Status)),
		})
	}
	return table.Render()
}

func orderDeleteRun(code string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := rootCmd.Context()

	o, err := s.GetOrder(ctx, code)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete order %s (client %s) with its parts and alerts", o.Code, o.ClientName)
		return nil
	}

	// Dependents first: alerts, then parts, then the order.
	if _, err := s.DeleteAlertsByOrder(ctx, code); err != nil {
		return err
	}
	if _, err := s.DeletePartsByOrder(ctx, code); err != nil {
		return err
	}
	if err := s.DeleteOrder(ctx, code); err != nil {
		return err
	}

	ui.Success("Deleted order %s", code)
	return nil
}

func partsListRun(query string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	parts, err := s.SearchParts(rootCmd.Context(), query)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		ui.Info("No parts found")
		return nil
	}

	table := ui.Table([]string{"Part", "Order", "Client", "Delivery", "Progress", "Status"})
	for _, p := range parts {
		table.Append([]string{
			p.Name,
			output.Cyan(p.OrderCode),
			p.ClientName,
			p.DeliveryDate,
			output.ProgressColor(p.Produced, p.Quantity),
			output.StatusColor(string(p.Status)),
		})
	}
	return table.Render()
}
