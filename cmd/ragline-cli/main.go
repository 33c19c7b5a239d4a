// Package main provides a simple CLI client for the ragline chat API.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"
)

// Event types on the chat stream.
const (
	TypeDelta = "delta"
	TypeDone  = "done"
	TypeError = "error"
)

// ChatRequest is the chat API request payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// SourceRef identifies a document behind a response.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// ChatResponse is the buffered chat API response.
type ChatResponse struct {
	Response  string      `json:"response"`
	SessionID string      `json:"session_id"`
	RunID     string      `json:"run_id"`
	Degraded  bool        `json:"degraded,omitempty"`
	Sources   []SourceRef `json:"sources,omitempty"`
}

// DeltaEvent carries incremental response text.
type DeltaEvent struct {
	Text  string `json:"text"`
	RunID string `json:"run_id"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	SessionID string      `json:"session_id"`
	RunID     string      `json:"run_id"`
	Degraded  bool        `json:"degraded,omitempty"`
	Sources   []SourceRef `json:"sources,omitempty"`
}

// ErrorEvent closes a failed stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the chat API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessionID  string
}

// NewClient creates a new client for the given server address.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Chat sends one buffered chat request.
func (c *Client) Chat(message string) (*ChatResponse, error) {
	body, _ := json.Marshal(ChatRequest{Message: message, SessionID: c.sessionID})
	resp, err := c.httpClient.Post(c.baseURL+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat failed [%d]: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out ChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	c.sessionID = out.SessionID
	return &out, nil
}

// ChatStream sends one streaming chat request and prints response text as
// it arrives.
func (c *Client) ChatStream(message string) error {
	body, _ := json.Marshal(ChatRequest{Message: message, SessionID: c.sessionID})
	resp, err := c.httpClient.Post(c.baseURL+"/v1/chat/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat failed [%d]: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	reader := bufio.NewReader(resp.Body)
	eventType := ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		switch eventType {
		case TypeDelta:
			var ev DeltaEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			fmt.Print(ev.Text)
		case TypeDone:
			var ev DoneEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			c.sessionID = ev.SessionID
			fmt.Println()
			printSources(ev.Sources, ev.Degraded)
		case TypeError:
			var ev ErrorEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			fmt.Println()
			return fmt.Errorf("stream error: %s - %s", ev.Code, ev.Message)
		}
	}
	return nil
}

// Health prints the server's component health report.
func (c *Client) Health() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	type check struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	var out struct {
		Status        string `json:"status"`
		SessionStore  check  `json:"session_store"`
		DocumentStore check  `json:"document_store"`
		Completion    check  `json:"completion"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	fmt.Printf("Server: %s\n", out.Status)
	printCheck := func(name string, c check) {
		if c.OK {
			fmt.Printf("  %s: ok\n", name)
			return
		}
		fmt.Printf("  %s: %s\n", name, c.Error)
	}
	printCheck("session store", out.SessionStore)
	printCheck("document store", out.DocumentStore)
	printCheck("completion", out.Completion)
	return nil
}

// History prints the session's conversation turns.
func (c *Client) History() error {
	if c.sessionID == "" {
		fmt.Println("No session yet.")
		return nil
	}

	resp, err := c.httpClient.Get(fmt.Sprintf("%s/v1/sessions/%s/turns", c.baseURL, c.sessionID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history failed [%d]: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out struct {
		Turns []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"turns"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	for _, t := range out.Turns {
		fmt.Printf("[%s] %s\n", t.Role, t.Content)
	}
	return nil
}

func printSources(sources []SourceRef, degraded bool) {
	if degraded {
		fmt.Println("(degraded: one search branch was unavailable)")
	}
	if len(sources) == 0 {
		return
	}
	fmt.Println("Sources:")
	for _, s := range sources {
		fmt.Printf("  - %s (%.3f)\n", s.Title, s.Score)
	}
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "ragline server address")
	session := flag.String("session", "", "existing session ID to resume")
	buffered := flag.Bool("buffered", false, "use buffered responses instead of streaming")
	flag.Parse()

	log.SetFlags(log.Ltime)

	client := NewClient(*addr)
	client.sessionID = *session

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type a message and press Enter to send.")
	fmt.Println("Commands: /new, /history, /health, /quit")
	fmt.Println()

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Read user input
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}
			if input == "/new" {
				client.sessionID = ""
				fmt.Println("Started a new session.")
				continue
			}
			if input == "/history" {
				if err := client.History(); err != nil {
					log.Printf("History error: %v", err)
				}
				continue
			}
			if input == "/health" {
				if err := client.Health(); err != nil {
					log.Printf("Health error: %v", err)
				}
				continue
			}

			if *buffered {
				resp, err := client.Chat(input)
				if err != nil {
					log.Printf("Chat error: %v", err)
					continue
				}
				fmt.Println(resp.Response)
				printSources(resp.Sources, resp.Degraded)
			} else {
				if err := client.ChatStream(input); err != nil {
					log.Printf("Chat error: %v", err)
				}
			}
		}
	}
}
