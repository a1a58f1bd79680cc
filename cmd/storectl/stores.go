package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func storesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List live store instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get("http://" + addr + "/stores")
			if err != nil {
				return fmt.Errorf("connect to devtools at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("devtools returned status %d", resp.StatusCode)
			}

			var ids []string
			if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
				return fmt.Errorf("decode store list: %w", err)
			}

			if len(ids) == 0 {
				fmt.Println("no live store instances")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}
