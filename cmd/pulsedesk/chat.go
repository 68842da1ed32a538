// ABOUTME: Interactive chat command: routes input, streams agent responses
// ABOUTME: Wires the session channel, router, handoff tracker, and store together

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/pulsedesk/pulsedesk/internal/auth"
	"github.com/pulsedesk/pulsedesk/internal/config"
	"github.com/pulsedesk/pulsedesk/internal/handoff"
	"github.com/pulsedesk/pulsedesk/internal/protocol"
	"github.com/pulsedesk/pulsedesk/internal/routing"
	"github.com/pulsedesk/pulsedesk/internal/session"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

var agentColors = map[protocol.AgentIdentity]*color.Color{
	protocol.AgentSales:     color.New(color.FgGreen),
	protocol.AgentTalent:    color.New(color.FgYellow),
	protocol.AgentAnalytics: color.New(color.FgMagenta),
}

type chatApp struct {
	cfg     *config.Config
	logger  *slog.Logger
	idx     *store.Index
	db      *store.SQLiteStore
	channel *session.Channel
	router  *routing.Router
	prefs   *routing.Preferences
	thread  *store.Thread

	mu      sync.Mutex
	tracker *handoff.Tracker
	context string
}

func runChat(ctx context.Context, args []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	color.New(color.FgCyan).Print(banner)
	fmt.Println()

	rules := routing.DefaultRules()
	if cfg.Routing.RulesPath != "" {
		rules, err = routing.LoadRules(cfg.Routing.RulesPath)
		if err != nil {
			return fmt.Errorf("loading routing rules: %w", err)
		}
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer db.Close()

	idx := store.NewIndex(logger)
	threads, err := db.LoadThreads(ctx)
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}
	for _, t := range threads {
		idx.Replace(t)
	}

	prefs := routing.NewPreferences()
	if err := prefs.SetMode(routing.Mode(cfg.Routing.DefaultMode)); err != nil {
		return fmt.Errorf("applying default routing mode: %w", err)
	}
	if cfg.Routing.ContextAware != nil {
		prefs.SetContextAware(*cfg.Routing.ContextAware)
	}

	app := &chatApp{
		cfg:    cfg,
		logger: logger,
		idx:    idx,
		db:     db,
		router: routing.NewRouter(rules, logger),
		prefs:  prefs,
	}

	if err := app.openThread(ctx, args); err != nil {
		return err
	}

	subject := cfg.Auth.Subject
	if subject == "" {
		subject = "pulsedesk"
	}
	tokens := auth.NewTokenSource([]byte(cfg.Auth.Secret), subject, cfg.Auth.TokenTTL)

	app.channel = session.NewChannel(cfg.Session.Endpoint, &session.WebSocketDialer{}, tokens.Token, session.Options{
		QueueSize:   cfg.Session.SendQueueSize,
		BackoffBase: cfg.Session.ReconnectBase,
		BackoffCap:  cfg.Session.ReconnectCap,
		AuthTimeout: cfg.Session.AuthTimeout,
		Logger:      logger,
	})
	defer app.channel.Close()

	if err := app.channel.SyncPreferences(ctx, prefs.Frame()); err != nil {
		return err
	}

	sub := app.channel.Subscribe()
	if err := app.channel.Start(ctx); err != nil {
		return err
	}

	go app.receiveLoop(ctx, sub)

	app.printStatus()
	return app.inputLoop(ctx)
}

// openThread resumes an existing conversation or starts a new one.
func (a *chatApp) openThread(ctx context.Context, args []string) error {
	if len(args) >= 2 && args[0] == "--resume" {
		t, err := a.idx.Get(args[1])
		if err != nil {
			return fmt.Errorf("resuming conversation %s: %w", args[1], err)
		}
		a.thread = t
		a.context = t.Context
		a.resetTracker()
		a.tracker.Replay(t.Messages)
		fmt.Printf("Resumed %q (%d messages)\n\n", t.Title, t.MessageCount)
		return nil
	}

	title := strings.Join(args, " ")
	if title == "" {
		title = "Conversation " + time.Now().Format("2006-01-02 15:04")
	}
	t := store.NewThread("", title, "", time.Now().UTC())
	if err := a.idx.CreateThread(t); err != nil {
		return err
	}
	a.thread = t
	a.resetTracker()
	if err := a.db.SaveThread(ctx, t); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

func (a *chatApp) resetTracker() {
	a.mu.Lock()
	a.tracker = handoff.NewTracker(a.prefs.Mode() == routing.ModeMulti, a.logger)
	a.mu.Unlock()
}

// receiveLoop consumes inbound frames until the channel closes.
func (a *chatApp) receiveLoop(ctx context.Context, sub <-chan *protocol.Frame) {
	gray := color.New(color.FgHiBlack)

	for frame := range sub {
		if frame.Type == protocol.KindTyping {
			name := frame.Agent.Info().DisplayName
			if name == "" {
				name = "agent"
			}
			gray.Printf("  %s is typing...\n", name)
			continue
		}

		msg, err := frame.Message()
		if err != nil {
			a.logger.Warn("dropping non-conversational frame", "kind", frame.Type)
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.Kind == protocol.KindAgentResponse && msg.Agent == "" {
			msg.Agent = a.router.InferResponder(msg)
		}

		var h *protocol.AgentHandoff
		if msg.Kind == protocol.KindAgentResponse && msg.Agent != "" {
			a.router.ObserveResponder(msg.Agent)

			a.mu.Lock()
			h = a.tracker.Observe(msg, frame.HandoffReason, frame.HandoffContextShift)
			a.mu.Unlock()
			if h != nil {
				msg.IsHandoff = true
				msg.Handoff = h
			}
		}

		if err := a.idx.Append(a.thread.ID, msg); err != nil {
			a.logger.Error("recording message", "error", err)
			continue
		}
		if err := a.db.SaveMessage(ctx, a.thread.ID, msg); err != nil {
			a.logger.Error("persisting message", "error", err)
		}

		if h != nil {
			if err := a.idx.AppendHandoff(a.thread.ID, h); err == nil {
				if err := a.db.SaveHandoff(ctx, a.thread.ID, h); err != nil {
					a.logger.Error("persisting handoff", "error", err)
				}
			}
			gray.Printf("  ↪ handoff: %s → %s\n", h.FromAgent.Info().DisplayName, h.ToAgent.Info().DisplayName)
		}

		a.printMessage(msg)

		if err := a.db.SaveThread(ctx, a.thread); err != nil {
			a.logger.Error("persisting conversation", "error", err)
		}
	}
}

func (a *chatApp) printMessage(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindAgentResponse, protocol.KindAIResponse:
		c, ok := agentColors[msg.Agent]
		if !ok {
			c = color.New(color.FgCyan)
		}
		c.Printf("%s: ", msg.Agent.Info().DisplayName)
		fmt.Println(msg.Content)
		if msg.Metadata != nil && msg.Metadata.Confidence != nil {
			color.New(color.FgHiBlack).Printf("  confidence: %s\n", *msg.Metadata.Confidence)
		}
	case protocol.KindSystem:
		color.New(color.FgHiBlack).Printf("  [system] %s\n", msg.Content)
	}
}

func (a *chatApp) inputLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan)

	for {
		prompt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := a.handleCommand(ctx, line)
			if err != nil {
				color.Red("%v", err)
			}
			if done {
				return nil
			}
			continue
		}
		if err := a.sendUserMessage(ctx, line); err != nil {
			color.Red("%v", err)
		}
	}
}

func (a *chatApp) sendUserMessage(ctx context.Context, text string) error {
	decision, err := a.router.Route(a.prefs, text, a.context)
	if err != nil {
		return err
	}

	msg := &protocol.Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Kind:      protocol.KindUserMessage,
		Content:   text,
	}
	if err := a.idx.Append(a.thread.ID, msg); err != nil {
		return err
	}
	if err := a.db.SaveMessage(ctx, a.thread.ID, msg); err != nil {
		a.logger.Error("persisting message", "error", err)
	}
	if err := a.db.SaveThread(ctx, a.thread); err != nil {
		a.logger.Error("persisting conversation", "error", err)
	}

	gray := color.New(color.FgHiBlack)
	if decision.Auto {
		if decision.Suggestion != "" {
			gray.Printf("  suggested: %s\n", decision.Suggestion.Info().DisplayName)
		}
	} else {
		names := make([]string, len(decision.Targets))
		for i, t := range decision.Targets {
			names[i] = t.Info().DisplayName
		}
		gray.Printf("  → %s\n", strings.Join(names, ", "))
	}

	return a.channel.SendMessage(ctx, msg)
}

func (a *chatApp) handleCommand(ctx context.Context, line string) (done bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/mode":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /mode single|multi|auto")
		}
		if err := a.prefs.SetMode(routing.Mode(args[0])); err != nil {
			return false, err
		}
		a.resetTracker()
		a.printStatus()
		return false, a.channel.SyncPreferences(ctx, a.prefs.Frame())

	case "/select":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /select <agent>")
		}
		if err := a.prefs.Select(protocol.AgentIdentity(args[0])); err != nil {
			return false, err
		}
		a.printStatus()
		return false, a.channel.SyncPreferences(ctx, a.prefs.Frame())

	case "/deselect":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /deselect <agent>")
		}
		if err := a.prefs.Deselect(protocol.AgentIdentity(args[0])); err != nil {
			return false, err
		}
		a.printStatus()
		return false, a.channel.SyncPreferences(ctx, a.prefs.Frame())

	case "/context":
		a.mu.Lock()
		a.context = strings.Join(args, " ")
		a.mu.Unlock()
		// A pending typing indicator belongs to the previous context.
		if err := a.idx.ClearTyping(a.thread.ID); err != nil {
			return false, err
		}
		fmt.Printf("context: %s\n", a.context)
		return false, nil

	case "/pin":
		if err := a.idx.SetPinned(a.thread.ID, true); err != nil {
			return false, err
		}
		return false, a.db.SaveThread(ctx, a.thread)

	case "/archive":
		if err := a.idx.SetArchived(a.thread.ID, true); err != nil {
			return false, err
		}
		return false, a.db.SaveThread(ctx, a.thread)

	case "/rate":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /rate 1-5")
		}
		rating, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("usage: /rate 1-5")
		}
		if err := a.idx.Rate(a.thread.ID, rating); err != nil {
			return false, err
		}
		return false, a.db.SaveThread(ctx, a.thread)

	case "/tag":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /tag <name>")
		}
		if err := a.idx.Tag(a.thread.ID, args[0]); err != nil {
			return false, err
		}
		return false, a.db.SaveThread(ctx, a.thread)

	case "/agents":
		for _, agent := range protocol.KnownAgents() {
			info := agent.Info()
			marker := " "
			if a.prefs.IsSelected(agent) {
				marker = "*"
			}
			fmt.Printf("  %s %-12s %s\n", marker, info.Identity, info.Description)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func (a *chatApp) printStatus() {
	names := make([]string, 0, 3)
	for _, agent := range a.prefs.Selected() {
		names = append(names, string(agent))
	}
	color.New(color.FgHiBlack).Printf("mode: %s | agents: %s | session: %s\n",
		a.prefs.Mode(), strings.Join(names, ","), a.channelState())
}

func (a *chatApp) channelState() session.State {
	if a.channel == nil {
		return session.StateIdle
	}
	return a.channel.State()
}
