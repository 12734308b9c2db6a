// =============================================================================
// RagFlow CLI
// =============================================================================
// 子命令: serve | ingest | query | health | version
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/ragflow/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `ragflow %s — retrieval-grounded answering service

Usage:
  ragflow serve   [-config path]                  start the HTTP service
  ragflow ingest  [-config path] [-roles r1,r2] <files...>
                                                  ingest documents into the store
  ragflow query   [-config path] [-mode rag|agentic] <query>
                                                  answer a query from the CLI
  ragflow health  [-config path]                  probe a running service
  ragflow version                                 print the version
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch cmd {
	case "serve":
		exitCode = cmdServe(args)
	case "ingest":
		exitCode = cmdIngest(args)
	case "query":
		exitCode = cmdQuery(args)
	case "health":
		exitCode = cmdHealth(args)
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		exitCode = 2
	}
	os.Exit(exitCode)
}

// loadConfig 解析 -config 之外的共享 flag 并加载配置
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, []string, error) {
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// buildLogger 依据日志配置构造 zap.Logger
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.Format
	if zc.Encoding == "" {
		zc.Encoding = "json"
	}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if zc.Encoding == "console" {
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	return zc.Build()
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
