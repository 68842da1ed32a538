// ABOUTME: History and stats commands over the conversation store
// ABOUTME: Filters map directly onto store search parameters

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/pulsedesk/pulsedesk/internal/config"
	"github.com/pulsedesk/pulsedesk/internal/protocol"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

func loadIndex(ctx context.Context) (*store.Index, func(), error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening conversation store: %w", err)
	}

	idx := store.NewIndex(logger)
	threads, err := db.LoadThreads(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("loading conversations: %w", err)
	}
	for _, t := range threads {
		idx.Replace(t)
	}
	return idx, func() { db.Close() }, nil
}

func runHistory(ctx context.Context, args []string) error {
	params, sort, err := parseHistoryArgs(args)
	if err != nil {
		return err
	}

	idx, cleanup, err := loadIndex(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	results := idx.Search(params, sort)
	if len(results) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCONTEXT\tMSGS\tAGENTS\tUPDATED\tFLAGS")
	for _, t := range results {
		agents := make([]string, len(t.ParticipatingAgents))
		for i, a := range t.ParticipatingAgents {
			agents[i] = string(a)
		}
		var flags []string
		if t.IsPinned {
			flags = append(flags, "pinned")
		}
		if t.IsArchived {
			flags = append(flags, "archived")
		}
		if t.UserRating != nil {
			flags = append(flags, fmt.Sprintf("%d/5", *t.UserRating))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(t.ID), t.Title, t.Context, t.MessageCount,
			strings.Join(agents, ","),
			t.UpdatedAt.Local().Format("2006-01-02 15:04"),
			strings.Join(flags, ","))
	}
	return w.Flush()
}

func parseHistoryArgs(args []string) (store.SearchParams, store.SortKey, error) {
	params := store.SearchParams{}
	sort := store.DefaultSort()

	next := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--query", "-q":
			v, err := next(i, args[i])
			if err != nil {
				return params, sort, err
			}
			params.Query = v
			i++
		case "--agent":
			v, err := next(i, args[i])
			if err != nil {
				return params, sort, err
			}
			params.AgentFilter = append(params.AgentFilter, protocol.AgentIdentity(v))
			i++
		case "--context":
			v, err := next(i, args[i])
			if err != nil {
				return params, sort, err
			}
			params.ContextFilter = append(params.ContextFilter, v)
			i++
		case "--min-rating":
			v, err := next(i, args[i])
			if err != nil {
				return params, sort, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return params, sort, fmt.Errorf("invalid rating %q", v)
			}
			params.MinRating = &n
			i++
		case "--pinned":
			t := true
			params.IsPinned = &t
		case "--archived":
			t := true
			params.IsArchived = &t
		case "--active":
			f := false
			params.IsArchived = &f
		case "--handoffs":
			t := true
			params.HasHandoffs = &t
		case "--sort":
			v, err := next(i, args[i])
			if err != nil {
				return params, sort, err
			}
			sort.Field = store.SortField(v)
			i++
		case "--asc":
			sort.Descending = false
		default:
			return params, sort, fmt.Errorf("unknown flag %s", args[i])
		}
	}
	return params, sort, nil
}

func runStats(ctx context.Context) error {
	idx, cleanup, err := loadIndex(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats := store.Stats(idx.List())

	yellow := color.New(color.FgYellow)
	yellow.Println("Conversations")
	fmt.Printf("  total:    %d\n", stats.TotalConversations)
	fmt.Printf("  active:   %d\n", stats.ActiveConversations)
	fmt.Printf("  archived: %d\n", stats.ArchivedConversations)
	fmt.Printf("  pinned:   %d\n", stats.PinnedConversations)
	fmt.Println()

	yellow.Println("Messages")
	fmt.Printf("  total:            %d\n", stats.TotalMessages)
	fmt.Printf("  avg/conversation: %.1f\n", stats.AvgMessagesPerConversation)
	fmt.Printf("  handoff rate:     %.2f\n", stats.HandoffFrequency)
	fmt.Println()

	yellow.Println("Agents")
	for _, agent := range protocol.KnownAgents() {
		count := stats.AgentUsageDistribution[agent]
		marker := " "
		if agent == stats.MostUsedAgent {
			marker = "*"
		}
		fmt.Printf("  %s %-12s %d responses\n", marker, agent, count)
	}
	if len(stats.ContextDistribution) > 0 {
		fmt.Println()
		yellow.Println("Contexts")
		for name, count := range stats.ContextDistribution {
			fmt.Printf("  %-20s %d\n", name, count)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
