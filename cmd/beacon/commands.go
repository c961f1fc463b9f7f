package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/armorclaw/beacon/internal/ingest"
	"github.com/armorclaw/beacon/internal/store"
	"github.com/armorclaw/beacon/pkg/beacon"
	"github.com/armorclaw/beacon/pkg/config"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
)

const flushTimeout = 10 * time.Second

// runInitCommand generates an example configuration file
func runInitCommand(cliCfg cliConfig, out io.Writer) error {
	outputPath := cliCfg.configOutput
	if outputPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to determine home directory: %w", err)
		}
		outputPath = filepath.Join(homeDir, ".beacon", "config.toml")
	}
	if err := config.GenerateExampleConfig(outputPath); err != nil {
		return fmt.Errorf("failed to generate example config: %w", err)
	}
	fmt.Fprintln(out, successStyle.Render("✓ Example configuration written to: "+outputPath))
	fmt.Fprintln(out, "  Edit the [http] section or set transport.kinds = [\"store\"] to keep events local.")
	return nil
}

// runValidateCommand validates the configuration
func runValidateCommand(cliCfg cliConfig, out io.Writer) error {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("✓ Configuration is valid!"))
	fmt.Fprintf(out, "  Transports: %v (async: %v)\n", cfg.Transport.Kinds, cfg.Transport.Async)
	if cfg.HasTransport(config.TransportStore) {
		fmt.Fprintf(out, "  Store: %s (retention %d days)\n", cfg.Store.Path, cfg.Store.RetentionDays)
	}
	if cfg.HasTransport(config.TransportHTTP) {
		fmt.Fprintf(out, "  HTTP: %s\n", cfg.HTTP.URL)
	}
	if cfg.HasTransport(config.TransportWebSocket) {
		fmt.Fprintf(out, "  WebSocket: %s\n", cfg.WebSocket.URL)
	}
	fmt.Fprintf(out, "  Release: %q  Environment: %q\n", cfg.Client.Release, cfg.Client.Environment)
	return nil
}

// connectError is the middle link of the test chain sent by 'capture'
type connectError struct {
	addr  string
	cause error
}

func (e *connectError) Error() string { return "connect " + e.addr }
func (e *connectError) Unwrap() error { return e.cause }

// runCaptureCommand sends a three level error chain through the configured
// transports
func runCaptureCommand(cliCfg cliConfig, out io.Writer) error {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	sys, err := beacon.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize beacon: %w", err)
	}

	testErr := fmt.Errorf("sync account: %w", &connectError{
		addr:  "db.internal:5432",
		cause: errors.New(cliCfg.message),
	})

	id, captureErr := beacon.TryCaptureError(testErr)

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	flushErr := sys.Flush(ctx)
	cancel()
	closeErr := sys.Close()

	if captureErr != nil {
		return fmt.Errorf("capture failed: %w", captureErr)
	}
	if flushErr != nil {
		return fmt.Errorf("flush failed: %w", flushErr)
	}
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", closeErr)
	}
	if id == uuid.Nil {
		fmt.Fprintln(out, "Event was dropped before delivery")
		return nil
	}
	fmt.Fprintln(out, successStyle.Render("✓ Captured event ")+idStyle.Render(protocol.EventIDString(id)))
	return nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(store.Config{
		Path:          cfg.Store.Path,
		RetentionDays: cfg.Store.RetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	return st, nil
}

// loadStore loads the configuration and opens its event store
func loadStore(cliCfg cliConfig) (*store.Store, error) {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

// runEventsCommand lists stored events
func runEventsCommand(cliCfg cliConfig, out io.Writer) error {
	st, err := loadStore(cliCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	q := store.Query{
		Level:         cliCfg.level,
		ExceptionType: cliCfg.excType,
		Release:       cliCfg.release,
		Limit:         cliCfg.limit,
	}
	if cliCfg.since > 0 {
		q.Since = time.Now().Add(-cliCfg.since)
	}

	events, err := st.Query(context.Background(), q)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}

	if cliCfg.jsonOut {
		return printJSON(out, events)
	}

	if len(events) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No events found"))
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Received", "Level", "Event ID", "Type", "Message")
	for _, ev := range events {
		if err := table.Append(
			dimStyle.Render(ev.ReceivedAt.Local().Format("2006-01-02 15:04:05")),
			levelLabel(ev.Level),
			idStyle.Render(protocol.EventIDString(ev.EventID)),
			truncate(ev.ExceptionType, 24),
			truncate(ev.Message, 60),
		); err != nil {
			return fmt.Errorf("failed to render events: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render events: %w", err)
	}
	return nil
}

// runShowCommand prints one stored event
func runShowCommand(cliCfg cliConfig, out io.Writer) error {
	if len(cliCfg.args) < 1 {
		return errors.New("usage: beacon show <event-id>")
	}
	id, err := uuid.Parse(cliCfg.args[0])
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", cliCfg.args[0], err)
	}

	st, err := loadStore(cliCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := st.Get(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("event %s not found", protocol.EventIDString(id))
	}
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	if !cliCfg.jsonOut {
		fmt.Fprintf(out, "%s %s  %s\n", levelBadge(ev.Level), idStyle.Render(protocol.EventIDString(ev.EventID)),
			dimStyle.Render(ev.ReceivedAt.Local().Format(time.RFC3339)))
		for i, exc := range ev.Event.Exception {
			value := ""
			if exc.Value != nil {
				value = *exc.Value
			}
			fmt.Fprintf(out, "  %d. %s: %s\n", i+1, exc.Type, value)
		}
		if len(ev.Event.Breadcrumbs) > 0 {
			fmt.Fprintln(out, dimStyle.Render("  breadcrumbs:"))
			for _, c := range ev.Event.Breadcrumbs {
				fmt.Fprintf(out, "    %s %s [%s] %s\n", dimStyle.Render(c.Timestamp.Local().Format("15:04:05")),
					levelLabel(c.Level), c.Category, c.Message)
			}
		}
		fmt.Fprintln(out)
	}
	return printJSON(out, ev.Event)
}

// runCleanupCommand removes events past retention
func runCleanupCommand(cliCfg cliConfig, out io.Writer) error {
	st, err := loadStore(cliCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.Cleanup(context.Background())
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Removed %d events older than %d days", removed, st.RetentionDays())))
	return nil
}

// runStatsCommand prints store statistics
func runStatsCommand(cliCfg cliConfig, out io.Writer) error {
	st, err := loadStore(cliCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if cliCfg.jsonOut {
		return printJSON(out, stats)
	}

	fmt.Fprintln(out, headerStyle.Render("Event store: "+st.Path()))
	fmt.Fprintf(out, "  Total events: %d\n", stats.TotalEvents)
	fmt.Fprintf(out, "  Unique types: %d\n", stats.UniqueTypes)
	if stats.Oldest != nil {
		fmt.Fprintf(out, "  Oldest: %s\n", stats.Oldest.Local().Format(time.RFC3339))
		fmt.Fprintf(out, "  Newest: %s\n", stats.Newest.Local().Format(time.RFC3339))
	}

	if len(stats.ByLevel) == 0 {
		return nil
	}

	levels := make([][]string, 0, len(stats.ByLevel))
	for _, name := range sortedKeys(stats.ByLevel) {
		label := name
		if lvl, err := protocol.ParseLevel(name); err == nil {
			label = levelLabel(lvl)
		}
		levels = append(levels, []string{label, strconv.Itoa(stats.ByLevel[name])})
	}
	if err := renderTable(out, []string{"Level", "Events"}, levels); err != nil {
		return err
	}

	types := make([][]string, 0, len(stats.ByType))
	for _, name := range sortedKeys(stats.ByType) {
		label := truncate(name, 40)
		if name == "" {
			label = dimStyle.Render("(none)")
		}
		types = append(types, []string{label, strconv.Itoa(stats.ByType[name])})
	}
	return renderTable(out, []string{"Type", "Events"}, types)
}

// renderTable writes a blank line followed by a two column table
func renderTable(out io.Writer, header []string, rows [][]string) error {
	fmt.Fprintln(out)
	table := tablewriter.NewWriter(out)
	table.Header(header[0], header[1])
	for _, row := range rows {
		if err := table.Append(row[0], row[1]); err != nil {
			return fmt.Errorf("failed to render stats: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render stats: %w", err)
	}
	return nil
}

// runMetricsCommand serves /metrics until interrupted
func runMetricsCommand(cliCfg cliConfig, out io.Writer) error {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = true
	if cliCfg.listen != "" {
		cfg.Metrics.Listen = cliCfg.listen
	}

	sys, err := beacon.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize beacon: %w", err)
	}

	fmt.Fprintf(out, "Serving metrics on http://%s/metrics (Ctrl+C to stop)\n", cfg.Metrics.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := sys.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
	}
	return nil
}

// runServeCommand receives events from remote transports into the store
func runServeCommand(cliCfg cliConfig, out io.Writer) error {
	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.addr != "" {
		cfg.Server.Listen = cliCfg.addr
	}

	lg, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(lg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.StartRetention(cfg.Store.RetentionSchedule, lg); err != nil {
		return fmt.Errorf("failed to start retention: %w", err)
	}

	srv := ingest.NewServer(ingest.Config{
		Addr:         cfg.Server.Listen,
		AuthToken:    cfg.Server.AuthToken,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, st, lg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Fprintf(out, "Receiving events on http://%s/api/events and ws://%s/ws (Ctrl+C to stop)\n",
		cfg.Server.Listen, cfg.Server.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ingest server failed: %w", err)
		}
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
		}
	}
	fmt.Fprintf(out, "Received %d events\n", srv.Received())
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
