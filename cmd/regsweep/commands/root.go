package commands

import (
	"context"
	"fmt"

	"regsweep/pkg/app"
	"regsweep/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	RS *app.App
)

var rootCmd = &cobra.Command{
	Use:   "regsweep",
	Short: "regsweep: mark-and-sweep garbage collector for registry blob stores",
	Long: `regsweep finds every blob in a registry v2 storage tree that is not reachable
from any tag and deletes all of its locations (the blob itself and every repository link).`,
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. 读取配置文件和环境变量 (命令行参数优先级最高)
		if err := bindFlags(cmd.Root()); err != nil {
			return err
		}
		if err := config.Load(cfgFile); err != nil {
			return err
		}

		// 2. 统一初始化 App
		var err error
		RS, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize regsweep: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if RS == nil {
			return nil
		}
		return RS.Close()
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	flags := rootCmd.PersistentFlags()

	// 1. 定义全局参数 --config
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./regsweep.yaml, /etc/regsweep or $HOME/.regsweep)")

	// 2. 其余参数在运行时绑定到 Viper (见 bindFlags)
	flags.String("storage-type", "", "storage driver: disk or s3")
	flags.String("storage-root", "", "root of the registry v2 tree (docker/registry/v2)")
	flags.Bool("dry-run", false, "report what would be deleted without deleting")
	flags.StringSlice("exclude", nil, "ignore tags matching <repo>[:<tag>] (glob) as reachability roots; their manifests are collected, so delete those tags before dropping the exclude")
	flags.StringSlice("protect", nil, "gitignore-style patterns of storage paths that are never deleted")
	flags.String("log-level", "", "log level: debug, info, warn, error")
}

// bindFlags 把命令行参数绑定到 Viper
// 这样用户既可以在 yaml 里写，也可以用命令行覆盖
func bindFlags(root *cobra.Command) error {
	flags := root.PersistentFlags()
	bindings := map[string]string{
		"storage.type":  "storage-type",
		"storage.root":  "storage-root",
		"gc.dry_run":    "dry-run",
		"gc.exclude":    "exclude",
		"sweep.protect": "protect",
		"log.level":     "log-level",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}
