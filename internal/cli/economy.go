package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// The economy subcommands talk to a running daemon over HTTP. The daemon
// owns the database; the CLI never opens it directly.

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(signupCmd)

	for _, c := range []*cobra.Command{balanceCmd, entriesCmd, statsCmd, signupCmd} {
		c.Flags().String("addr", "http://127.0.0.1:7450", "Daemon API address")
	}
	entriesCmd.Flags().Int("limit", 20, "Maximum entries to show")
}

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT",
	Short: "Show an account's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Account        string `json:"account"`
			Balance        int64  `json:"balance"`
			LifetimeEarned int64  `json:"lifetime_earned"`
			LifetimeSpent  int64  `json:"lifetime_spent"`
		}
		if err := apiGet(cmd, "/api/ledger/"+args[0]+"/balance", &out); err != nil {
			return err
		}
		fmt.Printf("Account:  %s\n", out.Account)
		fmt.Printf("Balance:  %d\n", out.Balance)
		fmt.Printf("Earned:   %d\n", out.LifetimeEarned)
		fmt.Printf("Spent:    %d\n", out.LifetimeSpent)
		return nil
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries ACCOUNT",
	Short: "Show an account's recent ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var out struct {
			Entries []struct {
				Amount       int64  `json:"amount"`
				Reason       string `json:"reason"`
				BalanceAfter int64  `json:"balance_after"`
				CreatedAt    string `json:"created_at"`
			} `json:"entries"`
		}
		path := fmt.Sprintf("/api/ledger/%s/entries?limit=%d", args[0], limit)
		if err := apiGet(cmd, path, &out); err != nil {
			return err
		}
		for _, e := range out.Entries {
			fmt.Printf("%-24s %+8d  %-22s balance %d\n", e.CreatedAt, e.Amount, e.Reason, e.BalanceAfter)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show economy-wide credit statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			TotalMinted      int64 `json:"total_minted"`
			TotalBurned      int64 `json:"total_burned"`
			TotalCirculating int64 `json:"total_circulating"`
			AccountCount     int64 `json:"account_count"`
		}
		if err := apiGet(cmd, "/api/ledger/stats", &out); err != nil {
			return err
		}
		fmt.Printf("Accounts:     %d\n", out.AccountCount)
		fmt.Printf("Minted:       %d\n", out.TotalMinted)
		fmt.Printf("Burned:       %d\n", out.TotalBurned)
		fmt.Printf("Circulating:  %d\n", out.TotalCirculating)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup ACCOUNT",
	Short: "Create a ledger account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			ID      string `json:"id"`
			Balance int64  `json:"balance"`
		}
		body := map[string]string{"account": args[0]}
		if err := apiPost(cmd, "/api/ledger/accounts", body, &out); err != nil {
			return err
		}
		fmt.Printf("Created account %s with balance %d\n", out.ID, out.Balance)
		return nil
	},
}

// ─── HTTP Helpers ───────────────────────────────────────────────────────────

func apiClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func apiGet(cmd *cobra.Command, path string, out interface{}) error {
	addr, _ := cmd.Flags().GetString("addr")
	resp, err := apiClient().Get(addr + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func apiPost(cmd *cobra.Command, path string, body, out interface{}) error {
	addr, _ := cmd.Flags().GetString("addr")
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := apiClient().Post(addr+path, "application/json", buf)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
