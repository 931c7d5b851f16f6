package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/pkg/logger"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clean package caches",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info [package]",
	Short: "Show cache usage for a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var info domain.CacheInfo
		if err := call(http.MethodGet, "/api/v1/packages/"+args[0]+"/cache", nil, &info); err != nil {
			fail(err)
		}
		fmt.Printf("%s: %d files, %s\n", info.Package, info.FileCount, humanize.Bytes(uint64(info.TotalSize)))
	},
}

var cacheClearUnusedCmd = &cobra.Command{
	Use:   "clear-unused [package]",
	Short: "Remove cached bundles the active manifest no longer references",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var result struct {
			Removed []string `json:"removed"`
		}
		if err := call(http.MethodPost, "/api/v1/packages/"+args[0]+"/cache/clear-unused", nil, &result); err != nil {
			fail(err)
		}
		if len(result.Removed) == 0 {
			fmt.Println("Nothing to remove")
			return
		}
		for _, name := range result.Removed {
			fmt.Printf("removed %s\n", name)
		}
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [package]",
	Short: "Remove every cached bundle of a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		if err := call(http.MethodDelete, "/api/v1/packages/"+args[0]+"/cache", nil, nil); err != nil {
			fail(err)
		}
		fmt.Printf("Cache of %s cleared\n", args[0])
	},
}

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Look up and load assets by key",
}

var assetExistsCmd = &cobra.Command{
	Use:   "exists [key]",
	Short: "Check whether an asset key is known",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		pkg, _ := cmd.Flags().GetString("package")

		params := url.Values{"key": {args[0]}}
		if pkg != "" {
			params.Set("package", pkg)
		}
		var result struct {
			Exists bool `json:"exists"`
		}
		if err := call(http.MethodGet, "/api/v1/assets/exists?"+params.Encode(), nil, &result); err != nil {
			fail(err)
		}
		fmt.Println(result.Exists)
		if !result.Exists {
			os.Exit(1)
		}
	},
}

var assetLoadCmd = &cobra.Command{
	Use:   "load [key]",
	Short: "Resolve an asset, optionally saving its bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		pkg, _ := cmd.Flags().GetString("package")
		output, _ := cmd.Flags().GetString("output")

		params := url.Values{"key": {args[0]}}
		if pkg != "" {
			params.Set("package", pkg)
		}

		if output == "" {
			var handle app.ContentHandle
			if err := call(http.MethodGet, "/api/v1/assets/load?"+params.Encode(), nil, &handle); err != nil {
				fail(err)
			}
			fmt.Printf("Asset %s\n", handle.Key)
			fmt.Printf("  Package: %s (%s)\n", handle.Package, handle.Version)
			fmt.Printf("  Bundle:  %s, %s\n", handle.Bundle.FileName, humanize.Bytes(uint64(handle.Bundle.Size)))
			for _, dep := range handle.Dependencies {
				fmt.Printf("  Depends: %s\n", dep.FileName)
			}
			return
		}

		params.Set("raw", "true")
		if err := saveBundle("/api/v1/assets/load?"+params.Encode(), output); err != nil {
			fail(err)
		}
	},
}

func saveBundle(path, output string) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s (hash %s)\n", humanize.Bytes(uint64(n)), output, resp.Header.Get("X-Bundle-Hash"))
	return nil
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run a hot update over every configured package",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		tags, _ := cmd.Flags().GetStringSlice("tags")
		wait, _ := cmd.Flags().GetBool("wait")

		var payload interface{}
		if len(tags) > 0 {
			payload = map[string]interface{}{"tags": tags}
		}
		if err := call(http.MethodPost, "/api/v1/update", payload, nil); err != nil {
			fail(err)
		}
		fmt.Println("Update started")
		if !wait {
			return
		}

		var last domain.UpdateState
		for {
			var status app.UpdateStatus
			if err := call(http.MethodGet, "/api/v1/update", nil, &status); err != nil {
				fail(err)
			}
			if status.State != last {
				if status.CurrentPackage != "" {
					fmt.Printf("%s (%s)\n", status.State, status.CurrentPackage)
				} else {
					fmt.Println(status.State)
				}
				last = status.State
			}
			if !status.Running && (status.State == domain.UpdateDone || status.State == domain.UpdateFailed) {
				if status.State == domain.UpdateFailed {
					fmt.Fprintf(os.Stderr, "Error: %s\n", status.ErrorMessage)
					os.Exit(1)
				}
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show server logs of a category (update, download, error)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")
		pkg, _ := cmd.Flags().GetString("package")
		task, _ := cmd.Flags().GetString("task")

		category, err := logger.ParseCategory(args[0])
		if err != nil {
			fail(err)
		}

		params := url.Values{"limit": {fmt.Sprint(limit)}}
		if date != "" {
			params.Set("date", date)
		}
		for key, value := range map[string]string{"package": pkg, "task": task, "q": search} {
			if value != "" {
				params.Set(key, value)
			}
		}

		var result struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		if err := call(http.MethodGet, "/api/v1/logs/"+string(category)+"?"+params.Encode(), nil, &result); err != nil {
			fail(err)
		}
		for _, e := range result.Entries {
			fmt.Printf("%s  %-5s  %s", e.Timestamp, strings.ToUpper(e.Level), e.Message)
			for k, v := range e.Fields {
				fmt.Printf("  %s=%v", k, v)
			}
			fmt.Println()
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "configs/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			fail(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}
		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			fail(err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd, cacheClearUnusedCmd, cacheClearCmd)
	assetCmd.AddCommand(assetExistsCmd, assetLoadCmd)
	configCmd.AddCommand(configInitCmd)

	assetExistsCmd.Flags().StringP("package", "p", "", "Package to search (default: all by priority)")
	assetLoadCmd.Flags().StringP("package", "p", "", "Package to search (default: all by priority)")
	assetLoadCmd.Flags().StringP("output", "o", "", "Write the bundle to this file")
	updateCmd.Flags().StringSlice("tags", nil, "Override the auto-download tags of every package")
	updateCmd.Flags().BoolP("wait", "w", false, "Wait for the update to finish")
	logsCmd.Flags().String("search", "", "Only show entries containing this text")
	logsCmd.Flags().StringP("package", "p", "", "Only show entries of this package")
	logsCmd.Flags().String("task", "", "Only show entries of this task")
	logsCmd.Flags().IntP("limit", "n", 50, "Maximum entries")
	logsCmd.Flags().String("date", "", "Day to read (YYYY-MM-DD, default: today)")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
