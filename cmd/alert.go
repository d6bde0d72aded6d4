package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mbrandao/opchat/internal/alerts"
	"github.com/mbrandao/opchat/internal/output"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Production risk alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertListRun()
	},
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertListRun()
	},
}

var alertScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan all orders for parts at risk and record alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return alertScanRun()
	},
}

func init() {
	alertCmd.AddCommand(alertListCmd)
	alertCmd.AddCommand(alertScanCmd)
	rootCmd.AddCommand(alertCmd)
}

func alertListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	list, err := s.ListAlerts(rootCmd.Context(), 100)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.Success("No alerts")
		return nil
	}

	table := ui.Table([]string{"Order", "Part", "Client", "Delivery", "Reason"})
	for _, a := range list {
		table.Append([]string{
			output.Cyan(a.OrderCode),
			a.PartName,
			a.ClientName,
			a.DeliveryDate,
			output.Yellow(a.Reason),
		})
	}
	return table.Render()
}

func alertScanRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	created, err := alerts.NewScanner(s).Scan(rootCmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}
	if len(created) == 0 {
		ui.Success("Scan complete, no new alerts")
		return nil
	}

	ui.Warning("Scan raised %d alert(s)", len(created))
	for _, a := range created {
		ui.VerboseLog("%s / %s: %s", a.OrderCode, a.PartName, a.Reason)
	}
	return alertListRun()
}
