// ABOUTME: Interactive config file generator for the chat client
// ABOUTME: Prompts for endpoint, credentials, and storage paths, then writes YAML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("pulsedesk configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "conversations.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Session configuration
	fmt.Println("\n--- Session Configuration ---")
	endpoint := prompt(reader, "Backend endpoint", "wss://localhost:8443/v1/session")

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	secret := prompt(reader, "Shared secret (leave empty to generate)", "")
	if secret == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		secret = hex.EncodeToString(raw)
		fmt.Printf("Generated secret: %s\n", secret)
	}
	subject := prompt(reader, "Session subject", "pulsedesk")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Routing
	fmt.Println("\n--- Routing Configuration ---")
	mode := prompt(reader, "Default routing mode (single/multi/auto)", "auto")
	rulesPath := prompt(reader, "Routing rules file (optional)", "")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# pulsedesk configuration\n")
	cfg.WriteString("# Generated by pulsedesk init\n\n")

	cfg.WriteString("session:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", endpoint))
	cfg.WriteString("  reconnect_base: \"1s\"\n")
	cfg.WriteString("  reconnect_cap: \"30s\"\n")
	cfg.WriteString("  auth_timeout: \"10s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  secret: \"%s\"\n", secret))
	cfg.WriteString(fmt.Sprintf("  subject: \"%s\"\n", subject))
	cfg.WriteString("  token_ttl: \"2m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("routing:\n")
	cfg.WriteString(fmt.Sprintf("  default_mode: \"%s\"\n", mode))
	if rulesPath != "" {
		cfg.WriteString(fmt.Sprintf("  rules_path: \"%s\"\n", rulesPath))
	}
	cfg.WriteString("  context_aware: true\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start chatting:")
	fmt.Printf("  pulsedesk chat\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return defaultVal
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}
