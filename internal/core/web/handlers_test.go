package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seckatie/arkive/internal/core/db"
)

func createBookmark(t *testing.T, ws *Server, token string, body map[string]any) db.Bookmark {
	t.Helper()
	w, env := do(t, ws, http.MethodPost, "/api/v1/bookmarks", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var b db.Bookmark
	env.into(t, &b)
	return b
}

func TestCreateBookmark(t *testing.T) {
	ws := newTestServer(t, Options{})

	t.Run("derives metadata", func(t *testing.T) {
		b := createBookmark(t, ws, aliceToken, map[string]any{"url": "github.com/torvalds/linux"})
		if b.URL != "https://github.com/torvalds/linux" {
			t.Errorf("expected normalized url, got %q", b.URL)
		}
		if !strings.HasPrefix(b.Title, "GitHub - ") {
			t.Errorf("expected GitHub title, got %q", b.Title)
		}
		if b.Domain != "github.com" || b.Description == "" || !b.Unread {
			t.Errorf("unexpected bookmark %+v", b)
		}
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		w, env := do(t, ws, http.MethodPost, "/api/v1/bookmarks", aliceToken, map[string]any{"url": "https://github.com/torvalds/linux"})
		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
		if env.Code != "DUPLICATE" {
			t.Errorf("expected DUPLICATE code, got %q", env.Code)
		}
	})

	t.Run("same url for another owner", func(t *testing.T) {
		createBookmark(t, ws, bobToken, map[string]any{"url": "https://github.com/torvalds/linux"})
	})

	t.Run("missing url", func(t *testing.T) {
		w, env := do(t, ws, http.MethodPost, "/api/v1/bookmarks", aliceToken, map[string]any{"title": "x"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		if !strings.Contains(env.Error, "url is required") {
			t.Errorf("expected field message, got %q", env.Error)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		w, _ := do(t, ws, http.MethodPost, "/api/v1/bookmarks", aliceToken, map[string]any{"url": "a.com", "bogus": 1})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("override wins", func(t *testing.T) {
		b := createBookmark(t, ws, aliceToken, map[string]any{"url": "https://example.org/x", "title": "Mine"})
		if b.Title != "Mine" {
			t.Errorf("expected override title, got %q", b.Title)
		}
	})
}

func TestBookmarkOwnership(t *testing.T) {
	ws := newTestServer(t, Options{})
	b := createBookmark(t, ws, aliceToken, map[string]any{"url": "https://a.com"})

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/v1/bookmarks/" + b.ID, nil},
		{http.MethodPatch, "/api/v1/bookmarks/" + b.ID, map[string]any{"title": "stolen"}},
		{http.MethodPut, "/api/v1/bookmarks/" + b.ID + "/star", map[string]any{"starred": true}},
		{http.MethodDelete, "/api/v1/bookmarks/" + b.ID, nil},
	} {
		t.Run(tc.method, func(t *testing.T) {
			w, env := do(t, ws, tc.method, tc.path, bobToken, tc.body)
			if w.Code != http.StatusNotFound {
				t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
			}
			if env.Code != "NOT_FOUND" || env.Error != "not found" {
				t.Errorf("foreign row must look missing, got %q %q", env.Code, env.Error)
			}
		})
	}

	w, env := do(t, ws, http.MethodGet, "/api/v1/bookmarks/"+b.ID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var got db.Bookmark
	env.into(t, &got)
	if got.Title == "stolen" || got.Starred {
		t.Errorf("bookmark was modified by another owner: %+v", got)
	}
}

func TestBookmarkMutations(t *testing.T) {
	ws := newTestServer(t, Options{})
	b := createBookmark(t, ws, aliceToken, map[string]any{"url": "https://a.com"})

	w, env := do(t, ws, http.MethodPost, "/api/v1/collections", aliceToken, map[string]any{"name": "Reading", "color": "hsl(1, 2%, 3%)"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var col db.Collection
	env.into(t, &col)

	t.Run("star", func(t *testing.T) {
		w, env := do(t, ws, http.MethodPut, "/api/v1/bookmarks/"+b.ID+"/star", aliceToken, map[string]any{"starred": true})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var got db.Bookmark
		env.into(t, &got)
		if !got.Starred {
			t.Error("expected starred")
		}
	})

	t.Run("star requires a value", func(t *testing.T) {
		w, _ := do(t, ws, http.MethodPut, "/api/v1/bookmarks/"+b.ID+"/star", aliceToken, map[string]any{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("mark read", func(t *testing.T) {
		w, env := do(t, ws, http.MethodPut, "/api/v1/bookmarks/"+b.ID+"/unread", aliceToken, map[string]any{"unread": false})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var got db.Bookmark
		env.into(t, &got)
		if got.Unread {
			t.Error("expected read")
		}
	})

	t.Run("move and clear", func(t *testing.T) {
		_, env := do(t, ws, http.MethodPut, "/api/v1/bookmarks/"+b.ID+"/collection", aliceToken, map[string]any{"collection_id": col.ID})
		var got db.Bookmark
		env.into(t, &got)
		if !got.InCollection(col.ID) {
			t.Fatalf("expected bookmark in collection, got %+v", got.CollectionID)
		}

		_, env = do(t, ws, http.MethodPut, "/api/v1/bookmarks/"+b.ID+"/collection", aliceToken, map[string]any{"collection_id": nil})
		env.into(t, &got)
		if got.CollectionID != nil {
			t.Errorf("expected no collection, got %v", *got.CollectionID)
		}
	})

	t.Run("patch title", func(t *testing.T) {
		_, env := do(t, ws, http.MethodPatch, "/api/v1/bookmarks/"+b.ID, aliceToken, map[string]any{"title": "Renamed"})
		var got db.Bookmark
		env.into(t, &got)
		if got.Title != "Renamed" || !got.Starred {
			t.Errorf("unexpected bookmark %+v", got)
		}
	})

	t.Run("filters", func(t *testing.T) {
		createBookmark(t, ws, aliceToken, map[string]any{"url": "https://b.com"})
		for filter, want := range map[string]int{"all": 2, "starred": 1, "unread": 1, "recent": 2} {
			_, env := do(t, ws, http.MethodGet, "/api/v1/bookmarks?filter="+filter, aliceToken, nil)
			var got []db.Bookmark
			env.into(t, &got)
			if len(got) != want {
				t.Errorf("filter %s: expected %d bookmarks, got %d", filter, want, len(got))
			}
		}
		w, _ := do(t, ws, http.MethodGet, "/api/v1/bookmarks?filter=nope", aliceToken, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("search", func(t *testing.T) {
		_, env := do(t, ws, http.MethodGet, "/api/v1/bookmarks?q=renam", aliceToken, nil)
		var got []db.Bookmark
		env.into(t, &got)
		if len(got) != 1 || got[0].ID != b.ID {
			t.Errorf("expected the renamed bookmark, got %d results", len(got))
		}
	})

	t.Run("check duplicate", func(t *testing.T) {
		_, env := do(t, ws, http.MethodGet, "/api/v1/bookmarks/check?url=a.com", aliceToken, nil)
		var got map[string]bool
		env.into(t, &got)
		if !got["exists"] {
			t.Error("expected duplicate to be reported")
		}
	})

	t.Run("delete", func(t *testing.T) {
		w, _ := do(t, ws, http.MethodDelete, "/api/v1/bookmarks/"+b.ID, aliceToken, nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected status %d, got %d", http.StatusNoContent, w.Code)
		}
		w, _ = do(t, ws, http.MethodDelete, "/api/v1/bookmarks/"+b.ID, aliceToken, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestDeleteCollection(t *testing.T) {
	for _, deleteContents := range []bool{false, true} {
		name := "keep contents"
		if deleteContents {
			name = "delete contents"
		}
		t.Run(name, func(t *testing.T) {
			ws := newTestServer(t, Options{})
			_, env := do(t, ws, http.MethodPost, "/api/v1/collections", aliceToken, map[string]any{"name": "Temp"})
			var col db.Collection
			env.into(t, &col)
			for _, u := range []string{"https://a.com", "https://b.com", "https://c.com"} {
				createBookmark(t, ws, aliceToken, map[string]any{"url": u, "collection_id": col.ID})
			}

			path := "/api/v1/collections/" + col.ID
			if deleteContents {
				path += "?delete_contents=true"
			}
			w, env := do(t, ws, http.MethodDelete, path, aliceToken, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
			}
			var res map[string]int
			env.into(t, &res)
			if res["affected"] != 3 {
				t.Errorf("expected 3 affected, got %d", res["affected"])
			}

			_, env = do(t, ws, http.MethodGet, "/api/v1/bookmarks", aliceToken, nil)
			var left []db.Bookmark
			env.into(t, &left)
			want := 3
			if deleteContents {
				want = 0
			}
			if len(left) != want {
				t.Errorf("expected %d bookmarks left, got %d", want, len(left))
			}
			for _, b := range left {
				if b.CollectionID != nil {
					t.Errorf("bookmark %s still references the collection", b.ID)
				}
			}
		})
	}
}

func TestCollectionValidation(t *testing.T) {
	ws := newTestServer(t, Options{})
	w, _ := do(t, ws, http.MethodPost, "/api/v1/collections", aliceToken, map[string]any{"name": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	w, _ = do(t, ws, http.MethodDelete, "/api/v1/collections/x?delete_contents=maybe", aliceToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestMetadata(t *testing.T) {
	ws := newTestServer(t, Options{})

	w, env := do(t, ws, http.MethodGet, "/api/v1/metadata?url=github.com/user/repo", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var got metadataResponse
	env.into(t, &got)
	if got.URL != "https://github.com/user/repo" || got.Domain != "github.com" || got.DominantColor == "" {
		t.Errorf("unexpected metadata %+v", got)
	}

	w, env = do(t, ws, http.MethodGet, "/api/v1/metadata?url=", aliceToken, nil)
	if w.Code != http.StatusBadRequest || env.Code != "INVALID_URL" {
		t.Errorf("expected INVALID_URL 400, got %d %q", w.Code, env.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	ws := newTestServer(t, Options{})
	_, env := do(t, ws, http.MethodPatch, "/api/v1/profile", bobToken, map[string]any{"full_name": "  Bob B "})
	var p db.Profile
	env.into(t, &p)
	if p.FullName != "Bob B" {
		t.Errorf("expected trimmed name, got %q", p.FullName)
	}
}

func TestImportEndpoint(t *testing.T) {
	ws := newTestServer(t, Options{})
	file := `<DL><p><DT><H3>Go</H3><DL><p><DT><A HREF="https://go.dev">Go</A></DL><p></DL>`
	w, env := do(t, ws, http.MethodPost, "/api/v1/bookmarks/import", aliceToken, file)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var res struct {
		Created     int `json:"created"`
		Collections int `json:"collections"`
	}
	env.into(t, &res)
	if res.Created != 1 || res.Collections != 1 {
		t.Errorf("unexpected import result %+v", res)
	}
}

func TestFeedStream(t *testing.T) {
	ws := newTestServer(t, Options{})
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/feed/bookmarks", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), "event: ") {
				event := strings.TrimPrefix(lines.Text(), "event: ")
				lines.Scan()
				return event + " " + strings.TrimPrefix(lines.Text(), "data: ")
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if got := next(); !strings.HasPrefix(got, "connected ") {
		t.Fatalf("expected connected event, got %q", got)
	}

	// bob's writes never reach alice's stream
	createBookmark(t, ws, bobToken, map[string]any{"url": "https://bob.example.com"})
	b := createBookmark(t, ws, aliceToken, map[string]any{"url": "https://alice.example.com"})

	got := next()
	if !strings.HasPrefix(got, "change ") || !strings.Contains(got, `"eventType":"INSERT"`) || !strings.Contains(got, b.ID) {
		t.Errorf("unexpected change event %q", got)
	}

	w, _ := do(t, ws, http.MethodGet, "/api/v1/feed/profiles", aliceToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d for unknown resource, got %d", http.StatusNotFound, w.Code)
	}
}
