package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
)

var (
	serverURL   string
	configFile  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "hotsync",
		Short: "hotsync CLI - content hot update client",
		Long:  `A command-line interface for inspecting packages, running hot updates and managing downloaded content.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(sizeCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// call sends a JSON request and decodes the response into out. Non-2xx responses become errors.
func call(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, package and update status",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var health map[string]interface{}
		if err := call(http.MethodGet, "/health", nil, &health); err != nil {
			fail(err)
		}
		var update app.UpdateStatus
		if err := call(http.MethodGet, "/api/v1/update", nil, &update); err != nil {
			fail(err)
		}

		fmt.Println("Server:")
		fmt.Printf("  Version:   %v\n", health["version"])
		fmt.Printf("  Play mode: %v\n", health["play_mode"])
		if pkgs, ok := health["packages"].(map[string]interface{}); ok {
			fmt.Printf("  Packages:  %v/%v initialized\n", pkgs["initialized"], pkgs["total"])
		}
		fmt.Println("Update:")
		fmt.Printf("  State:     %s\n", update.State)
		if update.CurrentPackage != "" {
			fmt.Printf("  Package:   %s\n", update.CurrentPackage)
		}
		if update.ErrorMessage != "" {
			fmt.Printf("  Error:     %s\n", update.ErrorMessage)
		}
		if update.FinishedAt != nil {
			fmt.Printf("  Finished:  %s\n", humanize.Time(*update.FinishedAt))
		}
	},
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List configured packages",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var result struct {
			Default  string                   `json:"default"`
			Packages []domain.PackageSnapshot `json:"packages"`
		}
		if err := call(http.MethodGet, "/api/v1/packages", nil, &result); err != nil {
			fail(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPRIORITY\tSTATUS\tVERSION\tBUNDLES")
		for _, p := range result.Packages {
			name := p.Name
			if name == result.Default {
				name += " *"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", name, p.Priority, p.Status, p.Version, p.BundleCount)
		}
		w.Flush()
	},
}

var initCmd = &cobra.Command{
	Use:   "init [package]",
	Short: "Initialize a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var snap domain.PackageSnapshot
		if err := call(http.MethodPost, "/api/v1/packages/"+args[0]+"/init", nil, &snap); err != nil {
			fail(err)
		}
		fmt.Printf("Package %s is %s\n", snap.Name, snap.Status)
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest [package]",
	Short: "Fetch and activate a package manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		version, _ := cmd.Flags().GetString("version")

		var snap domain.PackageSnapshot
		err := call(http.MethodPost, "/api/v1/packages/"+args[0]+"/manifest", map[string]string{"version": version}, &snap)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Package %s manifest %s loaded (%d bundles)\n", snap.Name, snap.Version, snap.BundleCount)
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size [package]",
	Short: "Show how much content a selection still needs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		tags, _ := cmd.Flags().GetStringSlice("tags")
		paths, _ := cmd.Flags().GetStringSlice("paths")

		query := "?tags=" + strings.Join(tags, ",") + "&paths=" + strings.Join(paths, ",")
		var result struct {
			TotalCount int   `json:"total_count"`
			TotalBytes int64 `json:"total_bytes"`
		}
		if err := call(http.MethodGet, "/api/v1/packages/"+args[0]+"/download-size"+query, nil, &result); err != nil {
			fail(err)
		}
		if result.TotalCount == 0 {
			fmt.Println("Everything is cached")
			return
		}
		fmt.Printf("%d files, %s to download\n", result.TotalCount, humanize.Bytes(uint64(result.TotalBytes)))
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [package]",
	Short: "Start a download task for a package",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		tags, _ := cmd.Flags().GetStringSlice("tags")
		paths, _ := cmd.Flags().GetStringSlice("paths")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		wait, _ := cmd.Flags().GetBool("wait")

		payload := map[string]interface{}{
			"tags":           tags,
			"paths":          paths,
			"max_concurrent": concurrency,
			"start":          true,
		}
		if len(args) == 1 {
			payload["package"] = args[0]
		}
		if cmd.Flags().Changed("retries") {
			retries, _ := cmd.Flags().GetInt("retries")
			payload["max_retries"] = retries
		}

		var snap app.TaskSnapshot
		if err := call(http.MethodPost, "/api/v1/tasks", payload, &snap); err != nil {
			fail(err)
		}
		fmt.Printf("Task %s created: %d files, %s\n",
			snap.ID, snap.Progress.TotalCount, humanize.Bytes(uint64(snap.Progress.TotalBytes)))

		if wait {
			waitForTask(snap.ID)
		}
	},
}

// waitForTask polls a task and prints progress until it is terminal
func waitForTask(id string) {
	var last string
	for {
		var snap app.TaskSnapshot
		if err := call(http.MethodGet, "/api/v1/tasks/"+id, nil, &snap); err != nil {
			fail(err)
		}
		line := fmt.Sprintf("%s  %d/%d files  %s / %s  (%.0f%%)",
			snap.State,
			snap.Progress.CurrentCount, snap.Progress.TotalCount,
			humanize.Bytes(uint64(snap.Progress.CurrentBytes)),
			humanize.Bytes(uint64(snap.Progress.TotalBytes)),
			snap.Ratio*100)
		if line != last {
			fmt.Println(line)
			last = line
		}
		if snap.State.IsTerminal() {
			if snap.State != domain.TaskSucceeded {
				if snap.Error != "" {
					fmt.Fprintf(os.Stderr, "Error: %s\n", snap.Error)
				}
				os.Exit(1)
			}
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List download tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		state, _ := cmd.Flags().GetString("state")

		path := "/api/v1/tasks"
		if state != "" {
			path += "?state=" + state
		}
		var tasks []app.TaskSnapshot
		if err := call(http.MethodGet, path, nil, &tasks); err != nil {
			fail(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPACKAGE\tSTATE\tFILES\tSIZE\tCREATED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				truncate(t.ID, 8),
				t.Package,
				t.State,
				t.Progress.CurrentCount, t.Progress.TotalCount,
				humanize.Bytes(uint64(t.Progress.TotalBytes)),
				humanize.Time(t.CreatedAt))
		}
		w.Flush()
	},
}

var taskCmd = &cobra.Command{
	Use:       "task [get|begin|pause|resume|cancel] [id]",
	Short:     "Inspect or control one download task",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"get", "begin", "pause", "resume", "cancel"},
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		action, id := args[0], args[1]

		var snap app.TaskSnapshot
		var err error
		switch action {
		case "get":
			err = call(http.MethodGet, "/api/v1/tasks/"+id, nil, &snap)
		case "begin", "pause", "resume", "cancel":
			err = call(http.MethodPost, "/api/v1/tasks/"+id+"/"+action, nil, &snap)
		default:
			err = fmt.Errorf("unknown action %q", action)
		}
		if err != nil {
			fail(err)
		}

		fmt.Printf("Task Details:\n")
		fmt.Printf("  ID:        %s\n", snap.ID)
		fmt.Printf("  Package:   %s\n", snap.Package)
		fmt.Printf("  Selection: %s\n", snap.Selection)
		fmt.Printf("  State:     %s\n", snap.State)
		fmt.Printf("  Progress:  %d/%d files, %s / %s\n",
			snap.Progress.CurrentCount, snap.Progress.TotalCount,
			humanize.Bytes(uint64(snap.Progress.CurrentBytes)),
			humanize.Bytes(uint64(snap.Progress.TotalBytes)))
		if len(snap.FailedFiles) > 0 {
			fmt.Printf("  Failed:    %s\n", strings.Join(snap.FailedFiles, ", "))
		}
		if snap.Error != "" {
			fmt.Printf("  Error:     %s\n", snap.Error)
		}
	},
}

func init() {
	manifestCmd.Flags().String("version", "", "Version to load (default: latest requested)")
	sizeCmd.Flags().StringSlice("tags", nil, "Bundle tags to select (default: all)")
	sizeCmd.Flags().StringSlice("paths", nil, "Asset locations to select")
	downloadCmd.Flags().StringSlice("tags", nil, "Bundle tags to download (default: all)")
	downloadCmd.Flags().StringSlice("paths", nil, "Asset locations to download")
	downloadCmd.Flags().IntP("concurrency", "c", 0, "Maximum parallel transfers (default: profile setting)")
	downloadCmd.Flags().IntP("retries", "r", 0, "Retries per file (default: profile setting)")
	downloadCmd.Flags().BoolP("wait", "w", false, "Wait for the task and show progress")
	tasksCmd.Flags().StringP("state", "s", "", "Filter by state")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
