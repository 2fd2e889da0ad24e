package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/spf13/cobra"
)

func main() {
	var addr string

	var rootCmd = &cobra.Command{Use: "rewards-query-tool"}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "localhost:9000", "ClickHouse address")

	// Reconciliations that ended up in the DLQ need a human to look at them.
	var deadLetteredCmd = &cobra.Command{
		Use:   "dead-lettered",
		Short: "List reward credits that exhausted their retries",
		Run: func(cmd *cobra.Command, args []string) {
			conn := connect(addr)
			defer conn.Close()

			rows, err := conn.Query(context.Background(), "SELECT attempt_id, user_id, amount, processed_at FROM reward_reconciliations WHERE outcome = 'dead_lettered' ORDER BY processed_at DESC LIMIT 20")
			if err != nil {
				log.Fatal(err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ATTEMPT ID\tUSER ID\tAMOUNT\tPROCESSED AT")
			for rows.Next() {
				var attemptID, userID, amount string
				var processedAt time.Time
				if err := rows.Scan(&attemptID, &userID, &amount, &processedAt); err != nil {
					log.Fatal(err)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", attemptID, userID, amount, processedAt.Format(time.RFC3339))
			}
			w.Flush()
		},
	}

	var backlogCmd = &cobra.Command{
		Use:   "backlog",
		Short: "Show reconciliation outcomes over the last 24 hours",
		Run: func(cmd *cobra.Command, args []string) {
			conn := connect(addr)
			defer conn.Close()

			rows, err := conn.Query(context.Background(), "SELECT outcome, count() AS n FROM reward_reconciliations WHERE processed_at > now() - INTERVAL 1 DAY GROUP BY outcome ORDER BY n DESC")
			if err != nil {
				log.Fatal(err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "OUTCOME\tCOUNT")
			for rows.Next() {
				var outcome string
				var n uint64
				if err := rows.Scan(&outcome, &n); err != nil {
					log.Fatal(err)
				}
				fmt.Fprintf(w, "%s\t%d\n", outcome, n)
			}
			w.Flush()
		},
	}

	rootCmd.AddCommand(deadLetteredCmd, backlogCmd)
	rootCmd.Execute()
}

func connect(addr string) clickhouse.Conn {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
	})
	if err != nil {
		log.Fatal(err)
	}
	return conn
}
