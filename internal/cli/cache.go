package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memebox/memebox/pkg/config"
	"github.com/memebox/memebox/pkg/rendercache"
)

// newCacheCmd creates the cache management command.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the file render cache",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePruneCmd())
	cmd.AddCommand(newCachePathCmd())

	return cmd
}

// newCacheClearCmd creates the "cache clear" subcommand.
func newCacheClearCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached renders from the file backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			dir := cacheDir(cfg.Cache)

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			count := 0
			err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || path == dir {
					return nil
				}
				if !info.IsDir() {
					if err := os.Remove(path); err == nil {
						count++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			// Clean up empty shard directories.
			_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || path == dir {
					return nil
				}
				if info.IsDir() {
					os.Remove(path)
				}
				return nil
			})

			printSuccess("Cleared %d cached renders", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	return cmd
}

// newCachePruneCmd creates the "cache prune" subcommand.
func newCachePruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired renders from the file backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			dir := cacheDir(cfg.Cache)

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			fc, err := rendercache.NewFileCache(dir)
			if err != nil {
				return err
			}
			removed, err := fc.Prune(cmd.Context())
			if err != nil {
				return err
			}

			printSuccess("Pruned %d expired renders", removed)
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	return cmd
}

// newCachePathCmd creates the "cache path" subcommand.
func newCachePathCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the file cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Println(cacheDir(cfg.Cache))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	return cmd
}
