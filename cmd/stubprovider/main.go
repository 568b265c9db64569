package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Canned answers keyed by persona. "technical" reads like a precise
// mechanic, "friendly" like a reassuring front desk.
var personas = map[string]string{
	"technical": "A clogged particulate filter is usually caused by short trips that never let it regenerate.\n\n" +
		"Drive 20 minutes at a steady 2500 rpm on the motorway to trigger regeneration. If the warning light stays on, a forced regeneration or a cleaning at 90 euros is needed.",
	"friendly": "Don't worry, this happens to many drivers and it is easy to fix!\n\n" +
		"Our team can check your car this week. Book a slot online and we will call you back today.",
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	addr := flag.String("addr", ":9001", "listen address")
	persona := flag.String("persona", "technical", "answer style: technical or friendly")
	delay := flag.Duration("delay", 0, "artificial latency per request")
	failRate := flag.Int("fail-every", 0, "answer 503 on every Nth request, 0 never fails")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	answer, ok := personas[*persona]
	if !ok {
		logger.Error("unknown persona", "persona", *persona)
		os.Exit(1)
	}

	var count atomic.Int64
	http.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if *failRate > 0 && n%int64(*failRate) == 0 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		if *delay > 0 {
			select {
			case <-time.After(*delay):
			case <-r.Context().Done():
				return
			}
		}

		var prompt string
		if len(req.Messages) > 0 {
			prompt = req.Messages[len(req.Messages)-1].Content
		}
		logger.Info("received request", "persona", *persona, "model", req.Model, "prompt_chars", len(prompt))

		response := map[string]interface{}{
			"model": req.Model,
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": strings.TrimSpace(answer)}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	logger.Info("stub provider starting", "addr", *addr, "persona", *persona)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("stub provider failed", "error", err)
		os.Exit(1)
	}
}
