package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/knoguchi/omnirag/internal/service"
)

func newQueryCmd() *cobra.Command {
	var userID, sessionID, strategy string

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Run a single query through the pipeline and print the answer envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(args[0], userID, sessionID, strategy)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli-user", "owner ID the query is scoped to")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID for memory continuity")
	cmd.Flags().StringVar(&strategy, "strategy", "", "force a strategy: direct_generation, vector_rag, graph_rag")
	return cmd
}

func runQuery(query, userID, sessionID, strategy string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := loadConfigOrExit(logger)

	pipeline, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer cleanup()

	envelope, err := pipeline.Answer(context.Background(), service.AnswerRequest{
		Query:            query,
		UserID:           userID,
		SessionID:        sessionID,
		StrategyOverride: service.Strategy(strategy),
	})
	if err != nil {
		return fmt.Errorf("answering query: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}
