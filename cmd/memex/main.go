// ABOUTME: Entry point for the memex CLI
// ABOUTME: Dispatches conversation, memory and console commands against the local store

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

const banner = `
 _ __ ___   ___ _ __ ___   _____  __
| '_ ' _ \ / _ \ '_ ' _ \ / _ \ \/ /
| | | | | |  __/ | | | | |  __/>  <
|_| |_| |_|\___|_| |_| |_|\___/_/\_\
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	case "init":
		if err := runInit(); err != nil {
			color.Red("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	// Setup graceful shutdown context first - all operations should respect it
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, handler, args)
	cancel()

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, handler commandFunc, args []string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return handler(ctx, a, parseArgs(args))
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: memex <command> [args]")
	fmt.Println()
	yellow.Println("Conversations:")
	fmt.Println("  new --workspace <w> --model <m> [--title <t>]   Create a conversation")
	fmt.Println("  list --workspace <w>                            List conversations in a workspace")
	fmt.Println("  show <conv>                                     Show messages and injected memories")
	fmt.Println("  rename <conv> <title>                           Change a conversation's title")
	fmt.Println("  delete <conv>                                   Delete a conversation")
	fmt.Println()
	yellow.Println("Messages:")
	fmt.Println("  send <conv> <text> [--role <r>] [--client-id <id>]")
	fmt.Println("                                                  Append a message (reopens a closed conversation)")
	fmt.Println("  pin <conv> <msg>                                Pin a message")
	fmt.Println("  unpin <conv> <msg>                              Unpin a message")
	fmt.Println("  rm <conv> <msg>                                 Delete a message")
	fmt.Println()
	yellow.Println("Memories:")
	fmt.Println("  memories --workspace <w>                        List memories in a workspace")
	fmt.Println("  inject <conv> <memory>                          Inject a memory into a conversation")
	fmt.Println("  uninject <conv> <memory>                        Remove an injected memory")
	fmt.Println("  toggle <conv> <memory>                          Pause or resume an injected memory")
	fmt.Println()
	yellow.Println("Lifecycle:")
	fmt.Println("  close <conv>                                    Summarize into a memory and close")
	fmt.Println("  reopen <conv>                                   Reopen a closed or archived conversation")
	fmt.Println("  archive <conv>                                  Archive a closed conversation")
	fmt.Println("  history <conv> [--limit <n>] [--cursor <c>]     Show the conversation's activity log")
	fmt.Println()
	yellow.Println("Other:")
	fmt.Println("  console <remember|search|inject> <json>         Run a console command")
	fmt.Println("  init                                            Write a default config file")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MEMEX_CONFIG             Config file path (default: ~/.config/memex/config.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  memex new --workspace W1 --model claude --title 'Release planning'")
	fmt.Println("  memex send <conv> 'hello'")
	fmt.Println(`  memex console search '{"query": "release", "top_k": 5}'`)
	fmt.Println()
}
