package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// webhookEnvelope mirrors the notify wire format.
type webhookEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewWebhookCommand returns the `siteqa webhook` subcommand, a small
// receiver for inspecting callback deliveries during development.
func NewWebhookCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Run a local webhook receiver that prints deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.HandleFunc("/", handleWebhookDelivery)

			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				fmt.Printf("webhook receiver listening on %s\n", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8001", "Listen address")
	return cmd
}

func handleWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("%s unparseable delivery: %v\n", red("✗"), err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s %s delivery at %s\n", bold("→"), bold(env.Type), time.Now().Format(time.RFC3339))
	printPayload(env.Payload)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"received"}`))
}

// printPayload pretty-prints the payload's top-level fields in a stable
// order, falling back to raw JSON for nested values.
func printPayload(raw json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		fmt.Printf("  %s\n", raw)
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	faint := color.New(color.Faint).SprintFunc()
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(fields[k], &s); err == nil {
			fmt.Printf("  %s %s\n", faint(k+":"), s)
			continue
		}
		fmt.Printf("  %s %s\n", faint(k+":"), fields[k])
	}
}
