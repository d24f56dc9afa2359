// Package main implements the hqa CLI for asking questions against a healthqa server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the healthqa HTTP server
	serverURL string
	// version information
	version = "dev"

	sessionID   string
	interactive bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hqa",
	Short: "CLI for the healthqa HTTP server",
	Long: `hqa is a command-line client for the healthqa service.
It asks health questions and checks server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "healthqa server URL")
	askCmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	askCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "answer clarification questions from stdin")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
}

// askCmd asks one question
var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask a health question",
	Long: `Ask a health question and print the graded answer.

When the server needs more detail it replies with a clarification question.
With --interactive the reply is read from stdin and sent as the follow-up;
otherwise rerun ask with the printed --session id.

Examples:
  # Ask a question
  hqa ask "高血压患者的饮食建议"

  # Answer clarifications inline
  hqa ask -i "我头疼"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check healthqa server health",
	RunE:  runHealth,
}

// ChatRequest matches the POST /api/chat body.
type ChatRequest struct {
	SessionID               string `json:"session_id,omitempty"`
	Message                 string `json:"message"`
	IsClarificationResponse bool   `json:"is_clarification_response"`
}

// Evidence is one graded passage in a ChatResponse.
type Evidence struct {
	Content           string `json:"content"`
	SourceName        string `json:"source_name"`
	SourceURL         string `json:"source_url,omitempty"`
	EvidenceLevel     int    `json:"evidence_level"`
	EvidenceLevelName string `json:"evidence_level_name"`
	PublicationDate   string `json:"publication_date,omitempty"`
}

// ChatResponse matches the POST /api/chat response.
type ChatResponse struct {
	SessionID             string     `json:"session_id"`
	NeedsClarification    bool       `json:"needs_clarification"`
	ClarificationQuestion *string    `json:"clarification_question"`
	Answer                *string    `json:"answer"`
	Evidences             []Evidence `json:"evidences"`
	Disclaimer            string     `json:"disclaimer"`
}

// HealthResponse matches GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 90 * time.Second}
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	req := ChatRequest{SessionID: sessionID, Message: strings.Join(args, " ")}
	for {
		resp, err := postChat(client, serverURL, req)
		if err != nil {
			return err
		}

		if !resp.NeedsClarification {
			printAnswer(out, resp)
			return nil
		}

		fmt.Fprintf(out, "%s\n", deref(resp.ClarificationQuestion))
		if !interactive {
			fmt.Fprintf(out, "\n(reply with: hqa ask --session %s \"...\")\n", resp.SessionID)
			return nil
		}

		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read reply: %w", err)
			}
			return fmt.Errorf("no reply given")
		}
		req = ChatRequest{SessionID: resp.SessionID, Message: line, IsClarificationResponse: true}
	}
}

func postChat(client *http.Client, base string, body ChatRequest) (*ChatResponse, error) {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, base+"/api/chat", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Detail)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var chat ChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &chat, nil
}

func printAnswer(w io.Writer, resp *ChatResponse) {
	fmt.Fprintf(w, "%s\n", deref(resp.Answer))
	if len(resp.Evidences) > 0 {
		fmt.Fprintln(w, "\n参考证据:")
		for i, ev := range resp.Evidences {
			fmt.Fprintf(w, "[%d] Level %d %s - %s", i+1, ev.EvidenceLevel, ev.EvidenceLevelName, ev.SourceName)
			if ev.SourceURL != "" {
				fmt.Fprintf(w, " (%s)", ev.SourceURL)
			}
			fmt.Fprintln(w)
		}
	}
	if resp.Disclaimer != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Disclaimer)
	}
	fmt.Fprintf(w, "\nsession: %s\n", resp.SessionID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", health.Status)
	return nil
}
