// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gatewayz/gatewayz-tui/internal/api"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSessionAndMessageRoundTrip(t *testing.T) {
	a := testArchive(t)
	now := time.Now().Truncate(time.Second)

	sess := api.Session{ID: 1, Title: "Trip planning", Model: "openai/gpt-4o", CreatedAt: now, UpdatedAt: now}
	if err := a.UpsertSession(sess); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	msgs := []api.Message{
		{ID: 10, SessionID: 1, Role: "user", Content: "Where to?", CreatedAt: now},
		{ID: 11, SessionID: 1, Role: "assistant", Content: "Lisbon.", Model: "openai/gpt-4o", Tokens: 3, CreatedAt: now},
	}
	for _, m := range msgs {
		if err := a.InsertMessage(m); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	got, err := a.Messages(1)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].Content != "Where to?" || got[1].Content != "Lisbon." {
		t.Errorf("order wrong: %+v", got)
	}
	if got[1].Tokens != 3 || got[1].Model != "openai/gpt-4o" {
		t.Errorf("fields lost: %+v", got[1])
	}
}

func TestUpsertSession_Refreshes(t *testing.T) {
	a := testArchive(t)
	now := time.Now()

	_ = a.UpsertSession(api.Session{ID: 1, Title: "old", Model: "m", CreatedAt: now, UpdatedAt: now})
	if err := a.UpsertSession(api.Session{ID: 1, Title: "new", Model: "m2", CreatedAt: now, UpdatedAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var title string
	if err := a.db.QueryRow("SELECT title FROM sessions WHERE id = 1").Scan(&title); err != nil {
		t.Fatal(err)
	}
	if title != "new" {
		t.Errorf("title = %q after upsert", title)
	}
}

func TestInsertMessage_ZeroRemoteID(t *testing.T) {
	a := testArchive(t)
	_ = a.UpsertSession(api.Session{ID: 1, Title: "t", Model: "m", CreatedAt: time.Now(), UpdatedAt: time.Now()})

	// Optimistic messages have no remote id yet; ordering is local.
	if err := a.InsertMessage(api.Message{SessionID: 1, Role: "user", Content: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := a.InsertMessage(api.Message{SessionID: 1, Role: "assistant", Content: "second"}); err != nil {
		t.Fatal(err)
	}

	got, err := a.Messages(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "first" {
		t.Errorf("unexpected messages: %+v", got)
	}
}

func TestDeleteSession_Cascades(t *testing.T) {
	a := testArchive(t)
	now := time.Now()
	_ = a.UpsertSession(api.Session{ID: 1, Title: "t", Model: "m", CreatedAt: now, UpdatedAt: now})
	_ = a.InsertMessage(api.Message{SessionID: 1, Role: "user", Content: "x"})

	if err := a.DeleteSession(1); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	got, err := a.Messages(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("messages survived session delete: %d", len(got))
	}
}

func TestExportMarkdown(t *testing.T) {
	a := testArchive(t)
	now := time.Now()
	_ = a.UpsertSession(api.Session{ID: 1, Title: "Trip", Model: "m", CreatedAt: now, UpdatedAt: now})
	_ = a.InsertMessage(api.Message{SessionID: 1, Role: "user", Content: "Where to?"})
	_ = a.InsertMessage(api.Message{SessionID: 1, Role: "assistant", Content: "Lisbon.", Model: "openai/gpt-4o"})

	path := filepath.Join(t.TempDir(), "out.md")
	if err := a.ExportMarkdown(1, "Trip", path); err != nil {
		t.Fatalf("ExportMarkdown failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"# Trip", "## You", "Where to?", "## Assistant (openai/gpt-4o)", "Lisbon."} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %q", want)
		}
	}
}
