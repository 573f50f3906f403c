package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coverctl",
	Short: "Operator CLI for a CoverLedger node",
	Long: `coverctl administers a running CoverLedger node over its HTTP API.

It covers governance (config, strategies, movers, signers, assets),
collector billing batches, state reads, and signing helpers for price
and cancellation attestations.

Caller identity is sent in the X-Caller-Address header; the node trusts
the gateway in front of it to have authenticated the caller.`,
}

var (
	serverAddr string
	callerAddr string
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server",
		envOr("COVERCTL_SERVER", "http://localhost:8080"), "base URL of the CoverLedger HTTP API")
	rootCmd.PersistentFlags().StringVar(&callerAddr, "caller",
		os.Getenv("COVERCTL_CALLER"), "caller address sent as X-Caller-Address")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func doRequest(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(serverAddr, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if callerAddr != "" {
		req.Header.Set("X-Caller-Address", callerAddr)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(payload)))
	}

	// Pretty-print whatever came back.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		fmt.Println(strings.TrimSpace(string(payload)))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func getJSON(path string) error {
	return doRequest(http.MethodGet, path, nil)
}

func postJSON(path string, body interface{}) error {
	return doRequest(http.MethodPost, path, body)
}

func deleteJSON(path string) error {
	return doRequest(http.MethodDelete, path, nil)
}

// parseCSVInts converts "100,200,300" into int64s.
func parseCSVInts(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d (%q): %w", i, p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseCSVStrings(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func parseCSVBools(raw string) ([]bool, error) {
	parts := strings.Split(raw, ",")
	out := make([]bool, 0, len(parts))
	for i, p := range parts {
		b, err := strconv.ParseBool(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("value %d (%q): %w", i, p, err)
		}
		out = append(out, b)
	}
	return out, nil
}
