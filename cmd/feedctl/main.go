// Command feedctl is a small operator CLI for a running feedsim backend:
// status inspection, manual posting, engine/joiner control, seeding, and a
// live feed tail over SSE.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	addr  string
	token string

	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "feedctl",
		Short:        "Control a running feedsim backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", envOr("FEEDSIM_ADDR", "http://localhost:8080"), "backend base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("ADMIN_TOKEN"), "admin token")

	root.AddCommand(statusCmd(), postCmd(), engineCmd(), joinerCmd(), poolCmd(), seedCmd(), tailCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func request(method, path string, body any) (map[string]any, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, addr+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			// some endpoints return arrays; show them raw
			fmt.Println(string(raw))
			return nil, nil
		}
	}
	return out, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show live simulation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := request(http.MethodGet, "/status", nil)
			if err != nil {
				return err
			}
			running := func(key string) string {
				if b, _ := out[key].(bool); b {
					return green("running")
				}
				return red("stopped")
			}
			fmt.Printf("engine:  %s\n", running("engine_running"))
			fmt.Printf("joiner:  %s\n", running("joiner_running"))
			fmt.Printf("pool:    %v messages\n", out["pool_size"])
			fmt.Printf("feed:    %v nodes, %v unseen\n", out["rendered_nodes"], out["unseen"])
			fmt.Printf("members: %v (%v online)\n", out["members"], out["online"])
			return nil
		},
	}
}

func postCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post messages from the pool immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := request(http.MethodPost, fmt.Sprintf("/admin/post?count=%d", count), nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s %v message(s)\n", green("posted"), out["posted"])
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "messages to post")
	return cmd
}

func toggleCmd(name, base string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Control the %s", name),
	}
	for _, action := range []string{"start", "stop"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the %s", strings.ToUpper(action[:1])+action[1:], name),
			RunE: func(cmd *cobra.Command, args []string) error {
				out, err := request(http.MethodPost, base+"/"+action, nil)
				if err != nil {
					return err
				}
				if b, _ := out["running"].(bool); b {
					fmt.Println(green("running"))
				} else {
					fmt.Println(yellow("stopped"))
				}
				return nil
			},
		})
	}
	return cmd
}

func engineCmd() *cobra.Command {
	return toggleCmd("engine", "/admin/engine")
}

func joinerCmd() *cobra.Command {
	cmd := toggleCmd("joiner", "/admin/joiner")
	var count int
	join := &cobra.Command{
		Use:   "join",
		Short: "Stage immediate joins",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := request(http.MethodPost, fmt.Sprintf("/admin/joiner/join?count=%d", count), nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s %v join(s)\n", green("staged"), out["staged"])
			return nil
		},
	}
	join.Flags().IntVar(&count, "count", 1, "joins to stage")
	cmd.AddCommand(join)
	return cmd
}

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and refill the message pool",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refill",
		Short: "Refill the pool to its target depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := request(http.MethodPost, "/admin/pool/refill", nil)
			if err != nil {
				return err
			}
			fmt.Printf("refilling: %v -> %v\n", out["size"], out["target"])
			return nil
		},
	})
	var min int
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Synchronously top the pool up to a minimum",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/admin/pool/ensure"
			if min > 0 {
				path = fmt.Sprintf("%s?min=%d", path, min)
			}
			out, err := request(http.MethodPost, path, nil)
			if err != nil {
				return err
			}
			fmt.Printf("pool size: %v\n", out["size"])
			return nil
		},
	}
	ensure.Flags().IntVar(&min, "min", 0, "minimum pool depth (default server-configured)")
	cmd.AddCommand(ensure)
	return cmd
}

func seedCmd() *cobra.Command {
	var start, end string
	var minPerDay, maxPerDay int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Backfill synthetic history across a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"start": start}
			if end != "" {
				body["end"] = end
			}
			if minPerDay > 0 {
				body["minPerDay"] = minPerDay
			}
			if maxPerDay > 0 {
				body["maxPerDay"] = maxPerDay
			}
			out, err := request(http.MethodPost, "/admin/seed", body)
			if err != nil {
				return err
			}
			fmt.Printf("%s %v message(s)\n", green("seeded"), out["posted"])
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "2025-03-14T00:00:00Z", "range start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "range end (RFC3339, default now)")
	cmd.Flags().IntVar(&minPerDay, "min-per-day", 0, "minimum messages per day")
	cmd.Flags().IntVar(&maxPerDay, "max-per-day", 0, "maximum messages per day")
	return cmd
}

func tailCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream the live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/feed/sse?tail=%d", addr, tail), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("tail: %s", resp.Status)
			}
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				printNode(strings.TrimPrefix(line, "data: "))
			}
			return scanner.Err()
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 20, "recent nodes to replay first")
	return cmd
}

func printNode(payload string) {
	var node struct {
		Type  string `json:"type"`
		Label string `json:"label,omitempty"`
		Time  string `json:"time_label,omitempty"`
		Msg   struct {
			Persona struct {
				Name string `json:"name"`
			} `json:"persona"`
			Text string `json:"text"`
			Kind string `json:"kind"`
		} `json:"message,omitempty"`
	}
	if err := json.Unmarshal([]byte(payload), &node); err != nil {
		fmt.Println(payload)
		return
	}
	switch node.Type {
	case "date":
		fmt.Println(yellow("--- " + node.Label + " ---"))
	default:
		name := node.Msg.Persona.Name
		if node.Msg.Kind == "system" {
			fmt.Printf("%s %s\n", cyan("*"), node.Msg.Text)
			return
		}
		fmt.Printf("%s %s: %s\n", node.Time, cyan(name), node.Msg.Text)
	}
}
