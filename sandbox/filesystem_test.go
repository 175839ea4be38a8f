package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestFilesRead(t *testing.T) {
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("path"); got != "/tmp/hello.txt" {
				t.Errorf("unexpected path: %q", got)
			}
			if got := r.URL.Query().Get("username"); got != "user" {
				t.Errorf("unexpected username: %q", got)
			}
			fmt.Fprint(w, "file content")
		}).Methods(http.MethodGet)
	})

	data, err := sb.Files().Read(context.Background(), "/tmp/hello.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "file content" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestFilesWrite(t *testing.T) {
	var uploaded []byte
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			uploaded, _ = io.ReadAll(file)
			w.WriteHeader(http.StatusOK)
		}).Methods(http.MethodPost)
		agent.HandleFunc("/files/stat", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"entry":{"name":"hello.txt","path":"/tmp/hello.txt","type":"file","size":6}}`)
		}).Methods(http.MethodGet)
	})

	info, err := sb.Files().Write(context.Background(), "/tmp/hello.txt", []byte("Hello!"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(uploaded) != "Hello!" {
		t.Errorf("unexpected upload payload: %q", uploaded)
	}
	if info.Name != "hello.txt" || info.Type != FileTypeFile || info.Size != 6 {
		t.Errorf("unexpected entry info: %+v", info)
	}
}

func TestFilesExists(t *testing.T) {
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files/stat", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("path") == "/tmp/present" {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"entry":{"name":"present","path":"/tmp/present","type":"file"}}`)
				return
			}
			http.Error(w, `{"message":"no such file"}`, http.StatusNotFound)
		}).Methods(http.MethodGet)
	})

	exists, err := sb.Files().Exists(context.Background(), "/tmp/present")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected file to exist")
	}

	exists, err = sb.Files().Exists(context.Background(), "/tmp/absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected file to be absent")
	}
}

func TestFilesList(t *testing.T) {
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files/list", func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("depth"); got != "2" {
				t.Errorf("unexpected depth: %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"entries":[{"name":"a.txt","type":"file"},{"name":"sub","type":"dir"}]}`)
		}).Methods(http.MethodGet)
	})

	entries, err := sb.Files().List(context.Background(), "/tmp", WithDepth(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Type != FileTypeDirectory {
		t.Errorf("unexpected entry type: %q", entries[1].Type)
	}
}

func TestFilesRemove(t *testing.T) {
	removed := false
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
			removed = true
			w.WriteHeader(http.StatusOK)
		}).Methods(http.MethodDelete)
	})

	if err := sb.Files().Remove(context.Background(), "/tmp/a.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected delete request")
	}
}

func TestFilesWatchDir(t *testing.T) {
	_, sb := newStreamTestServer(t, func(agent, _ *mux.Router) {
		agent.HandleFunc("/files/watch", func(w http.ResponseWriter, r *http.Request) {
			writeEvents(w,
				`{"name":"/tmp/watch/a.txt","type":"create"}`,
				`{"name":"/tmp/watch/a.txt","type":"write"}`,
			)
		}).Methods(http.MethodGet)
	})

	wh, err := sb.Files().WatchDir(context.Background(), "/tmp/watch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer wh.Stop()

	var types []string
	for ev := range wh.Events() {
		types = append(types, string(ev.Type))
	}
	if got := strings.Join(types, ","); got != "create,write" {
		t.Errorf("unexpected events: %q", got)
	}
	if err := wh.Err(); err != nil {
		t.Errorf("unexpected watch error: %v", err)
	}
}

func TestDownloadURLSigned(t *testing.T) {
	c := newTestClient(&mockAPI{})
	token := "secret-token"
	sb := newTestSandbox(c, "sb-1")
	sb.accessToken = &token

	u := sb.DownloadURL("/home/user/file.txt")
	if !strings.Contains(u, "signature=v1_") {
		t.Errorf("expected signed url, got %q", u)
	}
	if !strings.Contains(u, "signature_expiration=300") {
		t.Errorf("expected default expiration, got %q", u)
	}
}

func TestUploadURLWithoutToken(t *testing.T) {
	c := newTestClient(&mockAPI{})
	sb := newTestSandbox(c, "sb-1")

	u := sb.UploadURL("/file.txt", WithFileUser("admin"))
	if strings.Contains(u, "signature=") {
		t.Errorf("expected unsigned url, got %q", u)
	}
	if !strings.Contains(u, "username=admin") {
		t.Errorf("expected custom user, got %q", u)
	}
}
