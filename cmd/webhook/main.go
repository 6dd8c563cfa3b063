package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// Local stand-in for a chat webhook. Logs every delivery and answers 204 the
// way the real endpoint does.

type inbound struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

func handler(w http.ResponseWriter, r *http.Request) {
	limited := http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	dec := json.NewDecoder(limited)
	var in inbound
	var decodeErr string
	if err := dec.Decode(&in); err != nil {
		decodeErr = err.Error()
	}
	headersMap := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headersMap[name] = strings.Join(values, ", ")
	}
	logEntry := struct {
		Method      string            `json:"method"`
		URL         string            `json:"url"`
		Headers     map[string]string `json:"headers"`
		Username    string            `json:"username"`
		Content     string            `json:"content"`
		DecodeError string            `json:"decodeError,omitempty"`
	}{
		Method:      r.Method,
		URL:         r.URL.String(),
		Headers:     headersMap,
		Username:    strings.TrimSpace(in.Username),
		Content:     strings.TrimSpace(in.Content),
		DecodeError: strings.TrimSpace(decodeErr),
	}
	if b, err := json.Marshal(logEntry); err == nil {
		log.Println(string(b))
	}

	w.WriteHeader(http.StatusNoContent)
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", handler)

	srv := &http.Server{
		Addr:         ":8090",
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("webhook server listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
