package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type generationResult struct {
	ID         int64  `json:"id"`
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode"`
	ImageRef   string `json:"image_ref"`
	Provider   string `json:"provider"`
	AssetPath  string `json:"asset_path"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	CacheHit   int    `json:"cache_hit"`
	ReuseOf    *int64 `json:"reuse_of"`
	CreatedAt  string `json:"created_at"`
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func cacheHitLabel(hit int) string {
	switch hit {
	case 1:
		return "exact cache hit"
	case 2:
		return "similar cache hit"
	default:
		return "fresh"
	}
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a 3D asset from a prompt",
	Long: `Generate a 3D asset from a text prompt or a reference image.

Examples:
  meshgen generate "a red dragon perched on a castle"
  meshgen generate "low poly fox" --provider tripoSR
  meshgen generate --image ./fox.png
  meshgen generate "shiny robot" --reuse never
  meshgen generate --file ./prompts.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		providerName, _ := cmd.Flags().GetString("provider")
		reuse, _ := cmd.Flags().GetString("reuse")
		file, _ := cmd.Flags().GetString("file")

		prompt := strings.Join(args, " ")
		if prompt == "" && image == "" && file == "" {
			return fmt.Errorf("a prompt, --image, or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if file != "" {
			return generateBatch(cmd, client, file, providerName, reuse)
		}

		req := map[string]any{
			"prompt":       prompt,
			"provider":     providerName,
			"reuse_policy": reuse,
		}
		if image != "" {
			ref, err := uploadImage(cmd, client, image)
			if err != nil {
				return err
			}
			req["mode"] = "image"
			req["image_ref"] = ref
		}

		resp, err := client.post(cmd.Context(), "/v1/generations", req)
		if err != nil {
			return err
		}

		var result generationResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printResult(result)
		return nil
	},
}

func uploadImage(cmd *cobra.Command, client *apiClient, path string) (string, error) {
	printStep("Uploading %s...", path)
	ref, err := client.upload(cmd.Context(), "/v1/uploads", path)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	return ref, nil
}

// generateBatch submits one generation per non-empty line of the prompts
// file, a few at a time.
func generateBatch(cmd *cobra.Command, client *apiClient, path, providerName, reuse string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening prompts file: %w", err)
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading prompts file: %w", err)
	}
	if len(prompts) == 0 {
		printWarning("No prompts found in %s", path)
		return nil
	}

	printStep("Submitting %d prompts...", len(prompts))

	var mu sync.Mutex
	results := make([]generationResult, len(prompts))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(4)
	for i, prompt := range prompts {
		g.Go(func() error {
			req := map[string]any{
				"prompt":       prompt,
				"provider":     providerName,
				"reuse_policy": reuse,
			}
			resp, err := client.post(ctx, "/v1/generations", req)
			if err != nil {
				return err
			}
			var result generationResult
			if err := decodeJSON(resp, &result); err != nil {
				return fmt.Errorf("prompt %q: %w", prompt, err)
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fresh := 0
	for _, r := range results {
		if r.CacheHit == 0 {
			fresh++
		}
		fmt.Printf("%s  %s  %s\n",
			colorize(colorCyan, fmt.Sprintf("#%d", r.ID)),
			cacheHitLabel(r.CacheHit),
			r.Prompt,
		)
	}
	printSuccess("Completed %d generations (%d fresh, %d reused)", len(results), fresh, len(results)-fresh)
	return nil
}

func printResult(r generationResult) {
	printSuccess("Generation #%d (%s)", r.ID, cacheHitLabel(r.CacheHit))
	printStatus("Provider", "%s", r.Provider)
	printStatus("Asset", "%s", r.AssetPath)
	if r.CacheHit == 0 {
		printStatus("Duration", "%dms", r.DurationMS)
	}
	if r.ReuseOf != nil {
		printStatus("Reused from", "#%d", *r.ReuseOf)
	}
}

func init() {
	generateCmd.Flags().String("image", "", "reference image file for image mode")
	generateCmd.Flags().String("provider", "", "provider to use (default from config)")
	generateCmd.Flags().String("reuse", "", "reuse policy: smart, always, or never")
	generateCmd.Flags().String("file", "", "file with one prompt per line")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a generation with asset stats and feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/generations/"+args[0])
		if err != nil {
			return err
		}

		var detail any
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <id>",
	Short: "Rate a generation",
	Long: `Rate a generation from 1 to 5, optionally tagging issues.

Examples:
  meshgen feedback 12 --rating 5
  meshgen feedback 12 --rating 2 --issues low-poly,bad-texture --comment "melted geometry"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, _ := cmd.Flags().GetInt("rating")
		issuesStr, _ := cmd.Flags().GetString("issues")
		comment, _ := cmd.Flags().GetString("comment")

		var issues []string
		if issuesStr != "" {
			issues = strings.Split(issuesStr, ",")
			for i := range issues {
				issues[i] = strings.TrimSpace(issues[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"rating":  rating,
			"comment": comment,
		}
		if issues != nil {
			req["issues"] = issues
		}

		resp, err := client.post(cmd.Context(), "/v1/generations/"+args[0]+"/feedback", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Feedback recorded for generation #%s", args[0])
		return nil
	},
}

func init() {
	feedbackCmd.Flags().Int("rating", 0, "rating from 1 to 5 (required)")
	feedbackCmd.Flags().String("issues", "", "comma-separated issue tags")
	feedbackCmd.Flags().String("comment", "", "free-form comment")
	feedbackCmd.MarkFlagRequired("rating")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/generations?limit=%d", limit))
		if err != nil {
			return err
		}

		var results []generationResult
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No generations yet.")
			return nil
		}

		for _, r := range results {
			fmt.Printf("%s  %s  %-17s  %s\n",
				colorize(colorCyan, fmt.Sprintf("#%-4d", r.ID)),
				r.CreatedAt,
				cacheHitLabel(r.CacheHit),
				truncate(r.Prompt, 60),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 10, "maximum number of generations to list")
}

// --- metrics ---

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate generation metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/metrics")
		if err != nil {
			return err
		}

		var m struct {
			TotalGenerations int64    `json:"total_generations"`
			CacheHitRate     float64  `json:"cache_hit_rate_percent"`
			AvgRating        *float64 `json:"avg_rating"`
			AvgFreshDuration *float64 `json:"avg_fresh_generation_ms"`
			TopPrompts       []struct {
				Prompt string `json:"prompt"`
				Count  int64  `json:"count"`
			} `json:"top_prompts"`
		}
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}

		printStatus("Total generations", "%d", m.TotalGenerations)
		printStatus("Cache hit rate", "%.2f%%", m.CacheHitRate)
		if m.AvgRating != nil {
			printStatus("Average rating", "%.2f", *m.AvgRating)
		} else {
			printStatus("Average rating", "no feedback yet")
		}
		if m.AvgFreshDuration != nil {
			printStatus("Avg fresh duration", "%.0fms", *m.AvgFreshDuration)
		}
		if len(m.TopPrompts) > 0 {
			fmt.Fprintln(stderr)
			printStep("Top prompts:")
			for _, p := range m.TopPrompts {
				fmt.Fprintf(stderr, "  %4d  %s\n", p.Count, p.Prompt)
			}
		}
		return nil
	},
}
