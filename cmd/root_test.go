/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/feed"
	"github.com/seckatie/arkive/internal/core/view"
	"github.com/seckatie/arkive/internal/logger"
)

func TestRootCmd_Flags(t *testing.T) {
	tests := []struct {
		name         string
		flagName     string
		defaultValue interface{}
		flagType     string
		persistent   bool
	}{
		{"db flag has correct default", "db", "arkive.db", "string", true},
		{"config flag is empty by default", "config", "", "string", true},
		{"log-level flag has correct default", "log-level", "info", "string", true},
		{"port flag has correct default", "port", 8080, "int", false},
		{"host flag has correct default", "host", "localhost", "string", false},
		{"tokens flag is empty by default", "tokens", "", "string", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := rootCmd.Flags()
			if tt.persistent {
				flags = rootCmd.PersistentFlags()
			}

			var flag interface{}
			var err error
			switch tt.flagType {
			case "string":
				flag, err = flags.GetString(tt.flagName)
			case "int":
				flag, err = flags.GetInt(tt.flagName)
			}

			if err != nil {
				t.Fatalf("Failed to get flag %s: %v", tt.flagName, err)
			}
			if flag != tt.defaultValue {
				t.Errorf("Flag %s: got %v, want %v", tt.flagName, flag, tt.defaultValue)
			}
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	want := map[string]bool{"migrate": false, "import": false, "watch": false}
	for _, cmd := range rootCmd.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Expected %s subcommand to be registered", name)
		}
	}
}

func TestRootCmd_UsageOutput(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)

	if err := rootCmd.Usage(); err != nil {
		t.Errorf("Usage() returned error: %v", err)
	}
	if buf.String() == "" {
		t.Error("Expected usage output, got empty string")
	}
}

func TestRootCmd_CommandMetadata(t *testing.T) {
	if rootCmd.Use != "arkive" {
		t.Errorf("Expected Use to be 'arkive', got %s", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}
	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestMigrateCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arkive.db")

	out := execute(t, "migrate", "--db", path, "--log-level", "error")
	if !strings.Contains(out, "✓ 0001_schema") || !strings.Contains(out, "Database is up to date") {
		t.Errorf("unexpected first run output:\n%s", out)
	}

	out = execute(t, "migrate", "--db", path, "--log-level", "error")
	if !strings.Contains(out, "(already applied)") {
		t.Errorf("expected second run to skip applied steps:\n%s", out)
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, db.MigrationReport{Steps: []db.MigrationStep{
		{Version: "0001_schema", Skipped: true},
		{Version: "0002_triggers"},
		{Version: "0003_collection_ownership", Err: errors.New("boom")},
	}})

	want := "✓ 0001_schema (already applied)\n✓ 0002_triggers\n✗ 0003_collection_ownership: boom\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestImportCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arkive.db")
	file := filepath.Join(dir, "bookmarks.html")
	export := `<DL><p><DT><H3>Go</H3><DL><p><DT><A HREF="https://go.dev">Go</A><DT><A HREF="https://pkg.go.dev">Packages</A></DL><p></DL>`
	if err := os.WriteFile(file, []byte(export), 0o600); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "import", file, "--db", path, "--owner", "alice", "--email", "alice@example.com", "--log-level", "error")
	if !strings.Contains(out, "Imported 2 bookmarks (1 new collections, 0 already saved, 0 skipped)") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out = execute(t, "import", file, "--db", path, "--owner", "alice", "--log-level", "error")
	if !strings.Contains(out, "Imported 0 bookmarks (0 new collections, 2 already saved, 0 skipped)") {
		t.Errorf("unexpected output on re-import:\n%s", out)
	}
}

func TestPrintBookmarks(t *testing.T) {
	col := "c1"
	var buf bytes.Buffer
	printBookmarks(&buf,
		[]db.Bookmark{
			{Title: "Go", Domain: "go.dev", Starred: true, Unread: true, CollectionID: &col},
			{Title: "Example", Domain: "example.com"},
		},
		[]db.Collection{{ID: "c1", Name: "Reading", Count: 1}},
	)

	out := buf.String()
	for _, want := range []string{"[Reading 1]", "2 bookmarks", "★● Go  (go.dev)  #Reading", "   Example  (example.com)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFollowStopsWithSession(t *testing.T) {
	ctx := context.Background()
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "arkive.db"), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if _, err := database.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	changes := feed.New(4, logger.Nop())
	changes.Attach(database)
	session := view.NewSession("alice", database, changes)
	defer session.Close()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- follow(ctx, &buf, session, view.Query{}) }()

	deadline := time.Now().Add(time.Second)
	for changes.Subscribers()[feed.Collections] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	changes.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("follow returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("follow kept running after the session stopped")
	}
}
