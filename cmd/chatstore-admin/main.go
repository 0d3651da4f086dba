// ABOUTME: Admin CLI for inspecting and maintaining the chat store
// ABOUTME: Commands for storage info, legacy migration, export, and settings

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"

	"github.com/power7414/chatstore/internal/config"
	"github.com/power7414/chatstore/internal/service"
	"github.com/power7414/chatstore/internal/store"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │        chatstore-admin           │
    │   tiered chat persistence CLI    │
    │                                  │
    ╰──────────────────────────────────╯
`

// getConfigPath returns the path to the config file.
// Priority: CHATSTORE_CONFIG env var > XDG_CONFIG_HOME/chatstore/config.yaml > ~/.config/chatstore/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATSTORE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatstore", "config.yaml")
}

// getDataPath returns the default data directory used when no config
// file is present. Priority: XDG_DATA_HOME/chatstore > ~/.local/share/chatstore
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chatstore")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "info":
		err = cmdInfo(args)
	case "migrate":
		err = cmdMigrate(args)
	case "export":
		err = cmdExport(args)
	case "settings":
		err = cmdSettings(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: chatstore-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  info                    Show tier health, entity counts, and size on disk")
	fmt.Println("  migrate                 Run the legacy flat-store migration")
	fmt.Println("  migrate --clear-legacy  Migrate and remove migrated keys from the legacy store")
	fmt.Println("  export [file]           Export everything as a JSON snapshot (stdout if no file)")
	fmt.Println("  export --html <room-id> Render one room's transcript as HTML")
	fmt.Println("  settings list           List all settings")
	fmt.Println("  settings get <key>      Show one setting")
	fmt.Println("  settings set <key> <v>  Set a setting (bool/number detected, else string)")
	fmt.Println("  settings delete <key>   Delete a setting")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CHATSTORE_CONFIG        Config file path (default: ~/.config/chatstore/config.yaml)")
	fmt.Println("  CHATSTORE_DB            SQLite database path (overrides config)")
	fmt.Println("  CHATSTORE_LEGACY        Legacy flat-store JSON path (overrides config)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  chatstore-admin info")
	fmt.Println("  chatstore-admin export backup.json")
	fmt.Println("  chatstore-admin settings set theme dark")
	fmt.Println()
}

// openService wires the tier chain from config and initializes it.
// The caller owns the returned DB and must Close it.
func openService(autoMigrate bool) (*service.Service, *store.DB, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		cfg = config.Default()
		cfg.Logging.Level = "warn"
	}

	if p := os.Getenv("CHATSTORE_DB"); p != "" {
		cfg.Database.Path = p
	}
	if p := os.Getenv("CHATSTORE_LEGACY"); p != "" {
		cfg.Legacy.Path = p
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(getDataPath(), "chatstore.db")
	}
	if cfg.Legacy.Path == "" {
		cfg.Legacy.Path = filepath.Join(getDataPath(), "legacy.json")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))

	svc, db := service.NewFromConfig(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := svc.Initialize(ctx, service.InitOptions{AutoMigrate: autoMigrate}); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initializing storage: %w", err)
	}
	return svc, db, nil
}

// cmdInfo prints tier health, entity counts, and database size.
func cmdInfo(_ []string) error {
	svc, db, err := openService(false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := svc.StorageInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading storage info: %w", err)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	yellow.Println("Tiers:")
	for _, t := range info.Health.Tiers {
		marker := "  "
		if t.Name == info.Health.ActiveTier {
			marker = "* "
		}
		if t.Healthy {
			green.Printf("%s%-8s healthy\n", marker, t.Name)
		} else {
			red.Printf("%s%-8s unhealthy: %s\n", marker, t.Name, t.LastError)
		}
	}
	fmt.Println()
	yellow.Println("Counts:")
	fmt.Printf("  chat rooms:     %d\n", info.Counts.ChatRooms)
	fmt.Printf("  messages:       %d\n", info.Counts.Messages)
	fmt.Printf("  settings:       %d\n", info.Counts.Settings)
	fmt.Printf("  transcriptions: %d\n", info.Counts.Transcriptions)
	if info.QuotaBytes > 0 {
		fmt.Println()
		fmt.Printf("Database size: %d bytes\n", info.QuotaBytes)
	}
	return nil
}

// cmdMigrate runs the legacy migration and reports the result.
func cmdMigrate(args []string) error {
	clearLegacy := false
	for _, a := range args {
		switch a {
		case "--clear-legacy":
			clearLegacy = true
		default:
			return fmt.Errorf("unknown flag: %s", a)
		}
	}

	svc, db, err := openService(false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.Initialize(ctx, service.InitOptions{
		AutoMigrate:               true,
		ClearLegacyAfterMigration: clearLegacy,
	})
	if err != nil {
		return err
	}

	if !res.MigrationPerformed {
		fmt.Println("Nothing to migrate.")
		return nil
	}

	m := res.Migration
	color.Green("Migrated %d items (%d skipped)\n", m.MigratedItems, m.SkippedItems)
	if m.BackupKey != "" {
		fmt.Printf("Backup stored under metadata key %q\n", m.BackupKey)
	}
	if m.LegacyCleared {
		fmt.Println("Legacy store cleared of migrated keys.")
	}
	if len(m.Errors) > 0 {
		color.Yellow("%d items failed:\n", len(m.Errors))
		for _, e := range m.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("migration completed with %d errors", len(m.Errors))
	}
	return nil
}

// cmdExport writes a JSON snapshot, or renders one room as HTML.
func cmdExport(args []string) error {
	svc, db, err := openService(false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if len(args) > 0 && args[0] == "--html" {
		if len(args) < 2 {
			return fmt.Errorf("usage: export --html <room-id> [file]")
		}
		out := ""
		if len(args) > 2 {
			out = args[2]
		}
		return exportHTML(ctx, svc, args[1], out)
	}

	snap, err := svc.ExportData(ctx)
	if err != nil {
		return fmt.Errorf("exporting data: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if len(args) == 0 {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}
	color.Green("Exported %d rooms, %d settings, %d transcriptions to %s\n",
		len(snap.ChatRooms), len(snap.Settings), len(snap.Transcriptions), args[0])
	return nil
}

// exportHTML renders a room transcript as a standalone HTML page,
// converting message markdown to HTML.
func exportHTML(ctx context.Context, svc *service.Service, roomID, outPath string) error {
	room, err := svc.GetChatRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("loading room %s: %w", roomID, err)
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n</head>\n<body>\n", html.EscapeString(room.Name))
	fmt.Fprintf(&buf, "<h1>%s</h1>\n", html.EscapeString(room.Name))

	for _, msg := range room.Messages {
		fmt.Fprintf(&buf, "<div class=\"message %s\">\n", html.EscapeString(msg.Type))
		fmt.Fprintf(&buf, "<p class=\"meta\">%s · %s</p>\n",
			html.EscapeString(msg.Type), msg.Timestamp.Format(time.RFC3339))
		var body bytes.Buffer
		if err := goldmark.Convert([]byte(msg.Content), &body); err != nil {
			fmt.Fprintf(&buf, "<pre>%s</pre>\n", html.EscapeString(msg.Content))
		} else {
			buf.Write(body.Bytes())
		}
		buf.WriteString("</div>\n")
	}
	buf.WriteString("</body>\n</html>\n")

	if outPath == "" {
		fmt.Print(buf.String())
		return nil
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	color.Green("Wrote transcript for %q (%d messages) to %s\n", room.Name, len(room.Messages), outPath)
	return nil
}

// cmdSettings dispatches the settings subcommands.
func cmdSettings(args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	svc, db, err := openService(false)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		settings, err := svc.GetAllSettings(ctx)
		if err != nil {
			return err
		}
		if len(settings) == 0 {
			fmt.Println("No settings.")
			return nil
		}
		for _, s := range settings {
			fmt.Printf("%-30s %s\n", s.Key, formatValue(s.Value))
		}
		return nil

	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: settings get <key>")
		}
		s, err := svc.GetSetting(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", s.Key, formatValue(s.Value))
		fmt.Printf("  updated: %s (version %d)\n", s.UpdatedAt.Format(time.RFC3339), s.Version)
		return nil

	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: settings set <key> <value>")
		}
		if err := svc.SetSetting(ctx, args[1], parseValue(args[2])); err != nil {
			return err
		}
		color.Green("Set %s\n", args[1])
		return nil

	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: settings delete <key>")
		}
		if err := svc.DeleteSetting(ctx, args[1]); err != nil {
			return err
		}
		color.Green("Deleted %s\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown settings subcommand: %s", args[0])
	}
}

// parseValue detects booleans and numbers; anything else is a string.
func parseValue(raw string) store.SettingValue {
	if b, err := strconv.ParseBool(raw); err == nil {
		return store.BoolValue(b)
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return store.NumberValue(n)
	}
	return store.StringValue(raw)
}

func formatValue(v store.SettingValue) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unprintable: %v>", err)
	}
	return string(data)
}
