package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect active sessions",
}

type sessionListEntry struct {
	SessionKey   string `json:"session_key"`
	Turns        int    `json:"turns"`
	LastActivity string `json:"last_activity"`
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions via the daemon's HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if !cfg.HTTP.Enabled {
			return fmt.Errorf("http api is disabled; set http.enabled=true and restart the daemon")
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + cfg.HTTP.Listen + "/api/sessions")
		if err != nil {
			return fmt.Errorf("query daemon at %s: %w", cfg.HTTP.Listen, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned status %d", resp.StatusCode)
		}

		var sessions []sessionListEntry
		if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
			return fmt.Errorf("decode session list: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTURNS\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.SessionKey, s.Turns, s.LastActivity)
		}
		return w.Flush()
	},
}
