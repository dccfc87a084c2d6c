// ABOUTME: Subcommand handlers for the memex CLI
// ABOUTME: Each handler drives one registry, query or console operation and prints the result

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/memex/internal/console"
	"github.com/2389/memex/internal/conversation"
	"github.com/2389/memex/internal/store"
)

type commandFunc func(ctx context.Context, a *app, args cliArgs) error

var commands = map[string]commandFunc{
	"new":      cmdNew,
	"list":     cmdList,
	"show":     cmdShow,
	"send":     cmdSend,
	"pin":      cmdPin,
	"unpin":    cmdUnpin,
	"rm":       cmdRemoveMessage,
	"rename":   cmdRename,
	"delete":   cmdDelete,
	"inject":   cmdInject,
	"uninject": cmdUninject,
	"toggle":   cmdToggle,
	"close":    cmdClose,
	"reopen":   cmdReopen,
	"archive":  cmdArchive,
	"memories": cmdMemories,
	"history":  cmdHistory,
	"console":  cmdConsole,
}

var (
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.FgHiBlack)
)

func cmdNew(ctx context.Context, a *app, args cliArgs) error {
	workspace, model := args.flag("workspace"), args.flag("model")
	if workspace == "" || model == "" {
		return fmt.Errorf("usage: memex new --workspace <w> --model <m> [--title <t>]")
	}

	conv, err := a.reg.Create(ctx, workspace, model, args.flag("title"))
	if err != nil {
		return err
	}

	green.Printf("✓ Created conversation: %s\n", conv.ID)
	fmt.Printf("  Title:      %s\n", conv.Title)
	fmt.Printf("  Workspace:  %s\n", conv.WorkspaceID)
	fmt.Printf("  Model:      %s\n", conv.ModelID)
	return nil
}

func cmdList(ctx context.Context, a *app, args cliArgs) error {
	workspace := args.flag("workspace")
	if workspace == "" {
		return fmt.Errorf("usage: memex list --workspace <w>")
	}

	convs := a.query.ListConversations(workspace)
	if len(convs) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tSTATUS\tMESSAGES\tMEMORIES\tUPDATED")
	fmt.Fprintln(w, "  --\t-----\t------\t--------\t--------\t-------")
	for _, c := range convs {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID, truncate(c.Title, 32), c.Status, len(c.Messages), len(c.InjectedMemories),
			c.UpdatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdShow(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("show <conv>", 1)
	if err != nil {
		return err
	}

	conv, ok := a.query.GetConversationByID(pos[0])
	if !ok {
		return fmt.Errorf("conversation %q not found", pos[0])
	}

	fmt.Println()
	cyan.Printf("  %s\n", conv.Title)
	cyan.Println("  " + strings.Repeat("-", len([]rune(conv.Title))))
	fmt.Printf("  ID:         %s\n", conv.ID)
	fmt.Printf("  Workspace:  %s\n", conv.WorkspaceID)
	fmt.Printf("  Model:      %s\n", conv.ModelID)
	fmt.Printf("  Status:     %s\n", conv.Status)
	if conv.ClosedAt != nil {
		fmt.Printf("  Closed:     %s\n", conv.ClosedAt.Local().Format("Jan 02 15:04"))
	}
	fmt.Println()

	if len(conv.InjectedMemories) > 0 {
		yellow.Println("  Memories:")
		for _, assoc := range conv.InjectedMemories {
			state := "active"
			if !assoc.IsActive {
				state = "paused"
			}
			fmt.Printf("    [%s] %s  %s\n", state, assoc.MemoryID, assoc.Memory.Title)
		}
		fmt.Println()
	}

	summaries, err := a.bank.ListMemoriesByConversation(ctx, conv.ID)
	if err != nil {
		return err
	}
	if len(summaries) > 0 {
		yellow.Println("  Summaries:")
		for _, mem := range summaries {
			fmt.Printf("    %s %s  %s\n", mem.CreatedAt.Local().Format("Jan 02 15:04"), mem.ID, mem.Title)
		}
		fmt.Println()
	}

	if len(conv.Messages) == 0 {
		faint.Println("  (no messages)")
		fmt.Println()
		return nil
	}

	yellow.Println("  Messages:")
	for _, msg := range conv.Messages {
		pin := " "
		if msg.IsPinned {
			pin = "*"
		}
		faint.Printf("  %s %s %s ", pin, msg.CreatedAt.Local().Format("15:04:05"), msg.ID)
		roleColor(msg.Role).Printf("%s: ", msg.Role)
		fmt.Println(msg.Content)
	}
	fmt.Println()
	return nil
}

func roleColor(role store.Role) *color.Color {
	switch role {
	case store.RoleUser:
		return green
	case store.RoleAssistant:
		return cyan
	default:
		return yellow
	}
}

// cmdSend appends a message. A closed or archived conversation is reopened
// first so a reply continues the thread.
func cmdSend(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("send <conv> <text> [--role <r>] [--client-id <id>]", 2)
	if err != nil {
		return err
	}
	convID := pos[0]

	// Checked here so a rejected send cannot reopen a closed conversation
	text := strings.TrimSpace(args.rest(1))
	if text == "" {
		return errors.New("message text is empty")
	}
	role := store.Role(args.flag("role"))
	if role != "" && !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	clientID := args.flag("client-id")

	conv, ok := a.reg.Get(convID)
	if !ok {
		return fmt.Errorf("conversation %q not found", convID)
	}
	// A retry of a send that already landed must not reopen the conversation
	if conv.Status != store.StatusActive && conv.FindClientMessage(clientID) == nil {
		if _, err := a.reg.Reopen(ctx, convID); err != nil {
			return fmt.Errorf("reopening conversation: %w", err)
		}
		yellow.Printf("  Reopened %s conversation\n", conv.Status)
	}

	msg, err := a.reg.Append(ctx, convID, conversation.AppendRequest{
		Role:            role,
		Content:         text,
		ClientMessageID: clientID,
	})
	if err != nil {
		return err
	}

	green.Printf("✓ Sent message: %s\n", msg.ID)
	return nil
}

func cmdPin(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("pin <conv> <msg>", 2)
	if err != nil {
		return err
	}
	if _, err := a.reg.Pin(ctx, pos[0], pos[1]); err != nil {
		return err
	}
	green.Printf("✓ Pinned message: %s\n", pos[1])
	return nil
}

func cmdUnpin(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("unpin <conv> <msg>", 2)
	if err != nil {
		return err
	}
	if _, err := a.reg.Unpin(ctx, pos[0], pos[1]); err != nil {
		return err
	}
	green.Printf("✓ Unpinned message: %s\n", pos[1])
	return nil
}

func cmdRemoveMessage(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("rm <conv> <msg>", 2)
	if err != nil {
		return err
	}
	if err := a.reg.DeleteMessage(ctx, pos[0], pos[1]); err != nil {
		return err
	}
	green.Printf("✓ Deleted message: %s\n", pos[1])
	return nil
}

func cmdRename(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("rename <conv> <title>", 2)
	if err != nil {
		return err
	}
	title := args.rest(1)
	conv, err := a.reg.Update(ctx, pos[0], conversation.Patch{Title: &title})
	if err != nil {
		return err
	}
	green.Printf("✓ Renamed conversation: %s\n", conv.Title)
	return nil
}

func cmdDelete(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("delete <conv>", 1)
	if err != nil {
		return err
	}
	if err := a.reg.Delete(ctx, pos[0]); err != nil {
		return err
	}
	green.Printf("✓ Deleted conversation: %s\n", pos[0])
	return nil
}

func cmdInject(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("inject <conv> <memory>", 2)
	if err != nil {
		return err
	}
	assoc, err := a.reg.Inject(ctx, pos[0], pos[1])
	if err != nil {
		return err
	}
	green.Printf("✓ Injected memory: %s\n", assoc.MemoryID)
	if assoc.Memory.Title != "" {
		fmt.Printf("  Title:   %s\n", assoc.Memory.Title)
	}
	if !assoc.IsActive {
		fmt.Println("  State:   paused")
	}
	return nil
}

func cmdUninject(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("uninject <conv> <memory>", 2)
	if err != nil {
		return err
	}
	if err := a.reg.Uninject(ctx, pos[0], pos[1]); err != nil {
		return err
	}
	green.Printf("✓ Removed memory: %s\n", pos[1])
	return nil
}

func cmdToggle(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("toggle <conv> <memory>", 2)
	if err != nil {
		return err
	}
	active, err := a.reg.ToggleActive(ctx, pos[0], pos[1])
	if err != nil {
		return err
	}
	state := "paused"
	if active {
		state = "active"
	}
	green.Printf("✓ Memory %s is now %s\n", pos[1], state)
	return nil
}

func cmdClose(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("close <conv>", 1)
	if err != nil {
		return err
	}
	res, err := a.reg.Close(ctx, pos[0])
	if err != nil {
		return err
	}
	if res.AlreadyClosed {
		yellow.Println("  Conversation is already closed")
		return nil
	}

	green.Printf("✓ Closed conversation: %s\n", res.Conversation.ID)
	fmt.Printf("  Summary:  %s\n", res.Memory.ID)
	fmt.Printf("  Title:    %s\n", res.Memory.Title)
	return nil
}

func cmdReopen(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("reopen <conv>", 1)
	if err != nil {
		return err
	}
	conv, err := a.reg.Reopen(ctx, pos[0])
	if err != nil {
		return err
	}
	green.Printf("✓ Conversation %s is %s\n", conv.ID, conv.Status)
	return nil
}

func cmdArchive(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("archive <conv>", 1)
	if err != nil {
		return err
	}
	conv, err := a.reg.Archive(ctx, pos[0])
	if err != nil {
		return err
	}
	green.Printf("✓ Conversation %s is %s\n", conv.ID, conv.Status)
	return nil
}

func cmdMemories(ctx context.Context, a *app, args cliArgs) error {
	workspace := args.flag("workspace")
	if workspace == "" {
		return fmt.Errorf("usage: memex memories --workspace <w>")
	}

	mems, err := a.query.GetMemoriesByWorkspace(ctx, workspace)
	if err != nil {
		return err
	}
	if len(mems) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tTAGS\tSOURCE\tCREATED")
	fmt.Fprintln(w, "  --\t-----\t----\t------\t-------")
	for _, m := range mems {
		source := m.SourceConversationID
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			m.ID, truncate(m.Title, 40), truncate(strings.Join(m.Tags, ","), 32), source,
			m.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdHistory(ctx context.Context, a *app, args cliArgs) error {
	pos, err := args.require("history <conv> [--limit <n>] [--cursor <c>]", 1)
	if err != nil {
		return err
	}

	limit := 0
	if raw := args.flag("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return fmt.Errorf("invalid --limit %q: %w", raw, err)
		}
	}

	res, err := a.db.ListActivity(ctx, store.ListActivityParams{
		ConversationID: pos[0],
		Limit:          limit,
		Cursor:         args.flag("cursor"),
	})
	if err != nil {
		return err
	}
	if len(res.Entries) == 0 {
		fmt.Println("No activity found.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tEVENT\tSUBJECT\tDETAIL")
	fmt.Fprintln(w, "  ----\t-----\t-------\t------")
	for _, e := range res.Entries {
		subject := e.MessageID
		if subject == "" {
			subject = e.MemoryID
		}
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("Jan 02 15:04:05"), e.Type, subject, truncate(e.Detail, 40))
	}
	w.Flush()
	fmt.Println()

	if res.HasMore {
		faint.Printf("  More: memex history %s --cursor %s\n\n", pos[0], res.NextCursor)
	}
	return nil
}

func cmdConsole(ctx context.Context, a *app, args cliArgs) error {
	if len(args.positional) == 0 {
		yellow.Println("Console commands:")
		for _, cmd := range a.console.Commands() {
			fmt.Printf("  %-10s %s\n", cmd.Name, cmd.Description)
			faint.Printf("             %s\n", cmd.Template)
		}
		return nil
	}

	name := args.positional[0]
	res := a.console.Execute(ctx, name, json.RawMessage(args.rest(1)))

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))

	if res.Status == console.StatusError {
		return fmt.Errorf("console command %s failed", name)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
