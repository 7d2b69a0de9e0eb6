package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// fakeOpenCode is an in-process OpenCode server. Every prompt is answered
// with reply as one completed assistant message.
type fakeOpenCode struct {
	reply string
	// onPrompt runs before the reply is streamed; it stands in for the
	// assistant's tool use.
	onPrompt func()

	mu       sync.Mutex
	sessions int
	prompts  []string
	deleted  []string
	events   chan string
}

func newFakeOpenCode(t *testing.T, reply string) (*fakeOpenCode, *httptest.Server) {
	t.Helper()
	f := &fakeOpenCode{reply: reply, events: make(chan string, 64)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /global/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"healthy":true}`)
	})
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.sessions++
		id := "ses_" + strconv.Itoa(f.sessions)
		f.mu.Unlock()
		writeJSON(w, fmt.Sprintf(`{"id":%q,"title":"t","version":"1","projectID":"p","directory":"/","time":{"created":1,"updated":1}}`, id))
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		writeJSON(w, "true")
	})
	mux.HandleFunc("POST /session/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, "true")
	})
	mux.HandleFunc("POST /session/{id}/prompt_async", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for _, p := range body.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
		onPrompt := f.onPrompt
		f.mu.Unlock()

		if onPrompt != nil {
			onPrompt()
		}
		f.streamReply(r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /event", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		for {
			select {
			case data := <-f.events:
				fmt.Fprintf(w, "data: %s\n\n", data)
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func (f *fakeOpenCode) streamReply(session string) {
	msgID := "msg_" + session
	info := map[string]any{
		"id": msgID, "sessionID": session, "role": "assistant",
		"time": map[string]any{"created": 1},
	}
	f.emit("message.updated", map[string]any{"info": info})
	f.emit("message.part.updated", map[string]any{"part": map[string]any{
		"id": "prt_" + session, "sessionID": session, "messageID": msgID, "type": "text", "text": f.reply,
	}})
	info["time"] = map[string]any{"created": 1, "completed": 2}
	f.emit("message.updated", map[string]any{"info": info})
	f.emit("session.idle", map[string]any{"sessionID": session})
}

func (f *fakeOpenCode) emit(typ string, props map[string]any) {
	data, _ := json.Marshal(map[string]any{"type": typ, "properties": props})
	f.events <- string(data)
}

func (f *fakeOpenCode) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeOpenCode) deletedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
