// ABOUTME: Interactive setup for memex
// ABOUTME: Writes a YAML config with the database path and logging level

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/memex/internal/config"
)

func runInit() error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println("    Interactive Setup")
	fmt.Println("    -----------------")
	fmt.Println()

	configPath := config.ResolvePath()
	reader := bufio.NewReader(os.Stdin)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Printf("    Config already exists at %s\n", configPath)
		fmt.Print("    Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("    Aborted.")
			return nil
		}
		fmt.Println()
	}

	defaultDB := filepath.Join(config.DataDir(), "memex.db")

	green.Print("    ▶ ")
	fmt.Printf("Database path [%s]: ", defaultDB)
	dbPath, _ := reader.ReadString('\n')
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		dbPath = defaultDB
	}

	green.Print("    ▶ ")
	fmt.Printf("Log level [%s]: ", config.DefaultLogLevel)
	level, _ := reader.ReadString('\n')
	level = strings.TrimSpace(level)
	if level == "" {
		level = config.DefaultLogLevel
	}

	content := renderConfig(dbPath, level)

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("    ✓ Config written to %s\n", configPath)
	fmt.Println()
	fmt.Println("    Next steps:")
	fmt.Println("    1. Run: memex new --workspace <w> --model <m>")
	fmt.Println()

	return nil
}

func renderConfig(dbPath, level string) string {
	return fmt.Sprintf(`# memex configuration
# Generated by memex init

database:
  path: %q
  driver: %q

logging:
  level: %q
  format: %q

summarizer:
  timeout: %q
  title_length: %d
  snippet_length: %d

dedupe:
  ttl: %q
  max_size: %d

notifications:
  buffer_size: %d
`,
		dbPath, config.DefaultDriver,
		level, config.DefaultLogFormat,
		config.DefaultSummarizeTimeout.String(), config.DefaultTitleLength, config.DefaultSnippetLength,
		config.DefaultDedupeTTL.String(), config.DefaultDedupeMaxSize,
		config.DefaultBufferSize)
}
