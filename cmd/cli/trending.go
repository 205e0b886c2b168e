package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var (
	trendingType   string
	trendingWindow string
	trendingLimit  int
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show the current trending lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getTrending()
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Run one refresh pass now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return recompute()
	},
}

var jobStateCmd = &cobra.Command{
	Use:   "job-state",
	Short: "Show the refresh job's watermark and timestamps",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJobState()
	},
}

func init() {
	trendingCmd.Flags().StringVar(&trendingType, "type", "all", "Entity type: all, hashtag, user, or text")
	trendingCmd.Flags().StringVar(&trendingWindow, "window", "1h", "Window: 15m, 1h, or 24h")
	trendingCmd.Flags().IntVar(&trendingLimit, "limit", 20, "Entries per list (1-100)")
}

type trendingEntry struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	Count24h float64 `json:"count24h"`
	Unique   int     `json:"uniqueUsers24h"`
}

type trendingSet struct {
	Window  string          `json:"window"`
	Hashtag []trendingEntry `json:"hashtag"`
	User    []trendingEntry `json:"user"`
	Text    []trendingEntry `json:"text"`
}

func getTrending() error {
	query := url.Values{}
	query.Set("type", trendingType)
	query.Set("window", trendingWindow)
	query.Set("limit", fmt.Sprintf("%d", trendingLimit))

	body, err := apiGet("/api/v1/trending?" + query.Encode())
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	if trendingType == "all" {
		var set trendingSet
		if err := json.Unmarshal(body, &set); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		printList("Hashtags", set.Hashtag)
		printList("Users", set.User)
		printList("Text", set.Text)
		return nil
	}

	var entries []trendingEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	printList(trendingType, entries)
	return nil
}

func printList(title string, entries []trendingEntry) {
	fmt.Printf("%s (%s):\n", title, trendingWindow)
	if len(entries) == 0 {
		fmt.Println("  (nothing trending)")
		return
	}
	for _, e := range entries {
		fmt.Printf("  %2d. %-32s score=%-10.2f 24h=%-8.1f actors=%d\n",
			e.Rank, e.Label, e.Score, e.Count24h, e.Unique)
	}
}

func recompute() error {
	req, err := http.NewRequest("POST", apiURL+"/api/v1/trending/recompute", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recompute failed (%d): %s", resp.StatusCode, string(body))
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		Skipped          bool   `json:"skipped"`
		Reason           string `json:"reason"`
		ProcessedThrough string `json:"processed_through"`
		SnapshotRows     int    `json:"snapshot_rows"`
		CleanupRan       bool   `json:"cleanup_ran"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Skipped {
		fmt.Printf("Skipped: %s\n", result.Reason)
		return nil
	}
	fmt.Printf("Refreshed. Watermark: %s, snapshot rows: %d, cleanup: %v\n",
		result.ProcessedThrough, result.SnapshotRows, result.CleanupRan)
	return nil
}

func getJobState() error {
	body, err := apiGet("/api/v1/trending/job-state")
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var state struct {
		ID               string  `json:"id"`
		LastProcessedAt  string  `json:"last_processed_at"`
		LastSuccessfulAt *string `json:"last_successful_at"`
		LastCleanupAt    *string `json:"last_cleanup_at"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job:             %s\n", state.ID)
	fmt.Printf("Watermark:       %s\n", state.LastProcessedAt)
	fmt.Printf("Last successful: %s\n", stringOrNever(state.LastSuccessfulAt))
	fmt.Printf("Last cleanup:    %s\n", stringOrNever(state.LastCleanupAt))
	return nil
}

func stringOrNever(s *string) string {
	if s == nil {
		return "never"
	}
	return *s
}

func apiGet(path string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
