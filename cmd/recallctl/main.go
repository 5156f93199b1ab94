package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	userID     string
	sessionID  string
	collection string
	topK       int
)

func main() {
	root := &cobra.Command{
		Use:   "recallctl",
		Short: "Command-line client for the recall service",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "recall service base URL")

	recallCmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Query long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecall(args[0])
		},
	}
	recallCmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	recallCmd.Flags().StringVar(&sessionID, "session", "", "session id")
	recallCmd.Flags().StringVar(&collection, "collection", "default", "memory collection")
	recallCmd.Flags().IntVar(&topK, "k", 0, "number of results (0 uses the server default)")
	recallCmd.MarkFlagRequired("user")

	storeCmd := &cobra.Command{
		Use:   "store [text]",
		Short: "Queue one item for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(args[0])
		},
	}
	storeCmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	storeCmd.Flags().StringVar(&sessionID, "session", "", "session id")
	storeCmd.Flags().StringVar(&collection, "collection", "default", "memory collection")
	storeCmd.MarkFlagRequired("user")

	var contextQuery string
	contextCmd := &cobra.Command{
		Use:   "context [session-id]",
		Short: "Show the dialogue context of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(args[0], contextQuery)
		},
	}
	contextCmd.Flags().StringVar(&contextQuery, "query", "", "optional query to select relevant facts")
	contextCmd.Flags().StringVar(&collection, "collection", "", "restrict facts to one collection")

	root.AddCommand(recallCmd, storeCmd, contextCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRecall(query string) error {
	body := map[string]interface{}{
		"user_id":    userID,
		"session_id": sessionID,
		"collection": collection,
		"query":      query,
	}
	if topK > 0 {
		body["k"] = topK
	}
	return post("/api/v1/memory/recall", body)
}

func runStore(text string) error {
	body := map[string]interface{}{
		"collection": collection,
		"items": []map[string]interface{}{
			{
				"text":       text,
				"user_id":    userID,
				"session_id": sessionID,
				"ts":         time.Now().Unix(),
			},
		},
	}
	return post("/api/v1/memory/store", body)
}

func runContext(session, query string) error {
	u := serverAddr + "/api/v1/graph/context?session_id=" + url.QueryEscape(session)
	if query != "" {
		u += "&query=" + url.QueryEscape(query)
	}
	if collection != "" {
		u += "&collection=" + url.QueryEscape(collection)
	}
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func post(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverAddr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
