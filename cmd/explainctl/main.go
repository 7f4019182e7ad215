// explainctl is a command-line client for the explanation service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hl-fury/xai-narrative-service/internal/client"
	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

func main() {
	cmd := &cli.Command{
		Name:  "explainctl",
		Usage: "query the counterfactual narrative explanation service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "base URL of the explanation service",
				Value:   "http://localhost:8000",
				Sources: cli.EnvVars("XNE_SERVER"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			datasetsCommand(),
			modelsCommand(),
			exampleCommand(),
			explainCommand(),
			streamCommand(),
			historyCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newClient(cmd *cli.Command) *client.Client {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return client.New(cmd.String("server"), client.WithLogger(logger))
}

func datasetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "datasets",
		Usage: "list available datasets",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			datasets, err := newClient(cmd).Datasets(ctx)
			if err != nil {
				return err
			}
			for _, d := range datasets {
				fmt.Printf("%-12s %s\n", d.Key, d.Name)
			}
			return nil
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:      "models",
		Usage:     "list models available for a dataset",
		ArgsUsage: "<dataset>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("usage: explainctl models <dataset>")
			}
			list, err := newClient(cmd).Models(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			for _, m := range list.Models {
				fmt.Println(m)
			}
			if list.Warning != "" {
				fmt.Fprintln(os.Stderr, "warning:", list.Warning)
			}
			return nil
		},
	}
}

func exampleCommand() *cli.Command {
	return &cli.Command{
		Name:      "example",
		Usage:     "fetch a random factual/counterfactual pair",
		ArgsUsage: "<dataset>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("usage: explainctl example <dataset>")
			}
			pair, err := newClient(cmd).Example(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, pair)
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dataset", Usage: "dataset key", Required: true},
		&cli.StringFlag{Name: "model", Usage: "model name", Value: "demo"},
		&cli.StringFlag{Name: "factual", Usage: "factual instance as JSON; random example when omitted"},
		&cli.StringFlag{Name: "counterfactual", Usage: "counterfactual instance as JSON"},
		&cli.FloatFlag{Name: "temperature", Usage: "sampling temperature", Value: domain.DefaultTemperature},
		&cli.FloatFlag{Name: "top-p", Usage: "nucleus sampling threshold", Value: domain.DefaultTopP},
		&cli.IntFlag{Name: "max-tokens", Usage: "completion token budget", Value: domain.DefaultMaxTokens},
	}
}

// buildRequest assembles a generation request from flags, fetching a random
// example pair when no instances were given.
func buildRequest(ctx context.Context, cmd *cli.Command, c *client.Client) (*domain.GenerationRequest, error) {
	req := &domain.GenerationRequest{
		Dataset: cmd.String("dataset"),
		Model:   cmd.String("model"),
	}

	temp := cmd.Float("temperature")
	topP := cmd.Float("top-p")
	maxTokens := int(cmd.Int("max-tokens"))
	req.Temperature = &temp
	req.TopP = &topP
	req.MaxTokens = &maxTokens

	factualJSON := cmd.String("factual")
	counterfactualJSON := cmd.String("counterfactual")

	if factualJSON == "" || counterfactualJSON == "" {
		pair, err := c.Example(ctx, req.Dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch an example pair: %w", err)
		}
		req.Factual = pair.Factual
		req.Counterfactual = pair.Counterfactual
	}
	if factualJSON != "" {
		if err := json.Unmarshal([]byte(factualJSON), &req.Factual); err != nil {
			return nil, fmt.Errorf("invalid --factual: %w", err)
		}
	}
	if counterfactualJSON != "" {
		if err := json.Unmarshal([]byte(counterfactualJSON), &req.Counterfactual); err != nil {
			return nil, fmt.Errorf("invalid --counterfactual: %w", err)
		}
	}
	return req, nil
}

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:  "explain",
		Usage: "run a one-shot explanation",
		Flags: generationFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := newClient(cmd)
			req, err := buildRequest(ctx, cmd, c)
			if err != nil {
				return err
			}

			result, err := c.Explain(ctx, req)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "run a self-refinement explanation, showing draft progress",
		Flags: generationFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := newClient(cmd)
			req, err := buildRequest(ctx, cmd, c)
			if err != nil {
				return err
			}
			req.GenerationType = domain.ModeSelfRefinement

			snap, err := c.ExplainStream(ctx, req, func(s client.Snapshot) {
				fmt.Printf("\r%s", renderDrafts(s.Drafts))
			})
			fmt.Println()
			if err != nil {
				return err
			}
			if snap.Err != "" {
				return fmt.Errorf("explanation failed: %s", snap.Err)
			}
			printResult(snap.Result)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list or clear completed runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list completed runs, newest first",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					records, err := newClient(cmd).History(ctx)
					if err != nil {
						return err
					}
					for _, rec := range records {
						fmt.Printf("%s  %-10s %-24s %s\n",
							rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Dataset, rec.Model, rec.ID)
					}
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "delete all completed runs",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return newClient(cmd).ClearHistory(ctx)
				},
			},
		},
	}
}

func renderDrafts(drafts []domain.DraftStatus) string {
	symbols := map[domain.DraftState]string{
		domain.DraftPending: ".",
		domain.DraftLoading: "~",
		domain.DraftSuccess: "+",
		domain.DraftFailed:  "x",
	}
	var sb strings.Builder
	sb.WriteString("drafts [")
	for _, d := range drafts {
		sb.WriteString(symbols[d.Status])
	}
	sb.WriteString("]")
	return sb.String()
}

func printResult(result *domain.ExplanationResult) {
	fmt.Println(result.Explanation)

	if result.Metrics != nil {
		fmt.Println()
		fmt.Printf("parsed=%v pff=%v tf=%v", result.Metrics.JSONParsingSuccess, result.Metrics.PFF, result.Metrics.TF)
		if result.Metrics.AvgFF != nil {
			fmt.Printf(" avg_ff=%.3f", *result.Metrics.AvgFF)
		}
		fmt.Println()
	}
	if result.ConsensusScore != nil {
		fmt.Printf("consensus=%.2f\n", *result.ConsensusScore)
	}
	if len(result.FeatureChanges) > 0 {
		keys := make([]string, 0, len(result.FeatureChanges))
		for k := range result.FeatureChanges {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("changes:")
		for _, k := range keys {
			c := result.FeatureChanges[k]
			fmt.Printf("  %s: %v -> %v\n", k, c.Factual, c.Counterfactual)
		}
	}
	if result.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning:", result.Warning)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
