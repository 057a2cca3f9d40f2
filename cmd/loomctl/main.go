// Command loomctl is an interactive terminal client for manually exercising
// loomd's WebSocket event channel over the wire contract in internal/wire.
// Every submitted line goes over the network to a real loomd; nothing is
// simulated locally.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "loomctl",
	Short: "Interactive terminal client for a running loomd",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newChatModel(addr)
		if err != nil {
			return err
		}
		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "ws://127.0.0.1:5001/ws", "loomd WebSocket address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
