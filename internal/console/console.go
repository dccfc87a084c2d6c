// ABOUTME: Developer console that dispatches named commands with JSON parameters
// ABOUTME: Every execution yields a Result with success or error output and timing

package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Result status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// ErrUnknownCommand is returned when executing a command that is not registered
	ErrUnknownCommand = errors.New("unknown command")
	// ErrCommandCollision is returned when registering a duplicate command name
	ErrCommandCollision = errors.New("command already registered")
)

// Handler executes a console command. It receives the raw JSON parameters and
// returns the output fields to report.
type Handler func(ctx context.Context, params json.RawMessage) (map[string]any, error)

// Command is a console command and its handler.
type Command struct {
	Name        string
	Description string
	// Template is an example parameter object shown to users
	Template string
	Handler  Handler
}

// Result is the outcome of one command execution.
type Result struct {
	Command   string         `json:"command"`
	Status    string         `json:"status"`
	Output    map[string]any `json:"output"`
	Timestamp time.Time      `json:"timestamp"`
}

// Console holds the registered commands. Safe for concurrent use.
type Console struct {
	mu       sync.RWMutex
	commands map[string]*Command
	order    []string
	logger   *slog.Logger
}

// New creates an empty console. Pass nil logger for default.
func New(logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		commands: make(map[string]*Command),
		logger:   logger.With("component", "console"),
	}
}

// Register adds commands. Returns ErrCommandCollision if any name is taken,
// in which case none of them are registered.
func (c *Console) Register(cmds ...*Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(cmds))
	for _, cmd := range cmds {
		if _, exists := c.commands[cmd.Name]; exists || seen[cmd.Name] {
			return fmt.Errorf("%w: %q", ErrCommandCollision, cmd.Name)
		}
		seen[cmd.Name] = true
	}

	for _, cmd := range cmds {
		c.commands[cmd.Name] = cmd
		c.order = append(c.order, cmd.Name)
	}
	return nil
}

// Commands returns the registered commands in registration order.
func (c *Console) Commands() []*Command {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Command, 0, len(c.order))
	for _, name := range c.order {
		result = append(result, c.commands[name])
	}
	return result
}

// Execute runs a command. Failures are reported in the Result rather than
// returned, mirroring how the console displays them. Successful outputs
// carry an executionTime field.
func (c *Console) Execute(ctx context.Context, name string, params json.RawMessage) *Result {
	result := &Result{
		Command:   name,
		Timestamp: time.Now(),
	}

	output, err := c.execute(ctx, name, params)
	if err != nil {
		c.logger.Debug("console command failed", "command", name, "error", err)
		result.Status = StatusError
		result.Output = map[string]any{
			"success": false,
			"error":   err.Error(),
		}
		return result
	}

	result.Status = StatusSuccess
	result.Output = output
	return result
}

func (c *Console) execute(ctx context.Context, name string, params json.RawMessage) (map[string]any, error) {
	c.mu.RLock()
	cmd, ok := c.commands[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if !json.Valid(params) {
		return nil, errors.New("parameters must be valid JSON")
	}

	start := time.Now()
	output, err := cmd.Handler(ctx, params)
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = make(map[string]any)
	}
	output["executionTime"] = fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	return output, nil
}
