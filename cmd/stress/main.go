// Stress test: floods logsift's syslog listener with synthetic system lines
// and checks that they show up in the stored stats.
// Run: go run ./cmd/stress --syslog 127.0.0.1:5140 --api http://localhost:9102

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

// templates are rendered with a timestamp and a counter.
var templates = []string{
	"<30>%s stress myapp[%d]: request handled ok",
	"<27>%s stress myapp[%d]: ERROR upstream timeout",
	"<28>%s stress kernel: myapp[%d]: segfault at 0 ip 00007f error 4",
	"<85>%s stress sudo[%d]:   alice : TTY=pts/0 ; COMMAND=/usr/bin/dnf update",
	"<38>%s stress audit[%d]: ANOM_ABEND auid=1000 uid=1000 ses=2 comm=\"myapp\" sig=11 res=1",
}

type stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	TopService string         `json:"top_service"`
	TopSignal  string         `json:"top_signal"`
}

func main() {
	var (
		syslogAddr string
		apiURL     string
		workers    int
		lines      int
	)

	cmd := &cobra.Command{
		Use:          "stress",
		Short:        "Flood the syslog listener and verify ingestion",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := fetchStats(apiURL)
			if err != nil {
				return fmt.Errorf("query API before flood: %w", err)
			}

			fmt.Printf("=== logsift stress test ===\n")
			fmt.Printf("[1/3] Sending %d lines with %d senders to %s...\n", lines, workers, syslogAddr)
			start := time.Now()
			sent, err := flood(syslogAddr, workers, lines)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			fmt.Printf("  sent %d lines in %s (%.0f lines/s)\n", sent, elapsed.Round(time.Millisecond), float64(sent)/elapsed.Seconds())

			fmt.Println("[2/3] Waiting for the pipeline to drain...")
			var after *stats
			deadline := time.Now().Add(30 * time.Second)
			for time.Now().Before(deadline) {
				if after, err = fetchStats(apiURL); err == nil && after.Total-before.Total >= int(sent) {
					break
				}
				time.Sleep(500 * time.Millisecond)
			}
			if after == nil {
				return fmt.Errorf("query API after flood: %w", err)
			}

			fmt.Println("[3/3] Results")
			got := after.Total - before.Total
			fmt.Printf("  stored:      %d / %d\n", got, sent)
			fmt.Printf("  top service: %s\n", after.TopService)
			fmt.Printf("  top signal:  %s\n", after.TopSignal)
			for _, c := range []string{"security", "error", "crash"} {
				fmt.Printf("  %-12s %d\n", c+":", after.ByCategory[c]-before.ByCategory[c])
			}
			if got < int(sent) {
				// UDP may drop under load; report rather than hide it.
				return fmt.Errorf("%d lines missing", int(sent)-got)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&syslogAddr, "syslog", "127.0.0.1:5140", "syslog listener address")
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:9102", "logsift API base URL")
	cmd.Flags().IntVar(&workers, "senders", 4, "concurrent senders")
	cmd.Flags().IntVar(&lines, "lines", 10000, "total lines to send")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flood sends lines over TCP so none are dropped, split across workers.
func flood(addr string, workers, lines int) (int64, error) {
	var sent atomic.Int64
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			for i := w; i < lines; i += workers {
				ts := time.Now().Format(time.Stamp)
				line := fmt.Sprintf(templates[i%len(templates)], ts, 1000+i%50) + "\n"
				if _, err := conn.Write([]byte(line)); err != nil {
					errs <- err
					return
				}
				sent.Add(1)
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return sent.Load(), fmt.Errorf("send: %w", err)
	}
	return sent.Load(), nil
}

func fetchStats(apiURL string) (*stats, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiURL + "/api/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var s stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
