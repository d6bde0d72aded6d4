package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mbrandao/opchat/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query opchat natively for orders, parts, and
alerts, and drive the chat assistant. Configure a client with:

  {
    "mcpServers": {
      "opchat": { "command": "opchat", "args": ["mcp"] }
    }
  }

Available tools: opchat_chat, opchat_search_orders, opchat_search_parts,
opchat_list_alerts, opchat_scan_alerts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		orch, err := newOrchestrator()
		if err != nil {
			return err
		}
		return mcp.NewServer(s, orch).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
