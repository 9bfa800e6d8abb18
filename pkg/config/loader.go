package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. /etc/regsweep
		viper.AddConfigPath("/etc/regsweep")
		// 3. 用户主目录下的 .regsweep
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".regsweep"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("regsweep") // 找 regsweep.yaml
	}

	// 3. 读取环境变量 (REGSWEEP_STORAGE_ROOT, REGSWEEP_GC_INTERVAL 等)
	viper.SetEnvPrefix("REGSWEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (可能全部来自环境变量和命令行)
		// 但如果是配置文件格式错，那就是错
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Debug("config: no config file found, using defaults/env vars")
	} else {
		slog.Debug("config: using config file", slog.String("path", viper.ConfigFileUsed()))
	}

	return Validate()
}

func setDefaults() {
	// 存储默认值 (registry 默认的存储路径)
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.root", "/var/lib/registry/docker/registry/v2")
	viper.SetDefault("storage.max_inflight", 64)

	viper.SetDefault("s3.region", "us-east-1")

	// 回收默认值
	viper.SetDefault("gc.interval", time.Hour)
	viper.SetDefault("gc.dry_run", false)
	viper.SetDefault("gc.run_on_start", false)

	// 报告默认值
	viper.SetDefault("report.redis.key", "regsweep:reports")
	viper.SetDefault("report.redis.history", 100)
	viper.SetDefault("report.database.driver", "none")

	// 服务默认值
	viper.SetDefault("server.grpc_addr", ":9090")
	viper.SetDefault("server.http_addr", ":8080")

	viper.SetDefault("log.level", "info")
}

// Validate 检查互相关联的配置项
func Validate() error {
	if viper.GetDuration("gc.interval") < 0 {
		return fmt.Errorf("gc.interval must not be negative")
	}
	switch viper.GetString("report.database.driver") {
	case "", "none":
	case "sqlite", "postgres":
		if viper.GetString("report.database.dsn") == "" {
			return fmt.Errorf("report.database.dsn is required for driver %q", viper.GetString("report.database.driver"))
		}
	default:
		return fmt.Errorf("unsupported report.database.driver: %q", viper.GetString("report.database.driver"))
	}
	return nil
}

// LogLevel 解析 log.level
func LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return slog.LevelInfo
	}
	return level
}
