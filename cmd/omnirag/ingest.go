package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/knoguchi/omnirag/internal/service"
)

func newIngestCmd() *cobra.Command {
	var userID string
	var buildGraph bool

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Chunk, embed, and index a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(args[0], userID, buildGraph)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli-user", "owner ID the document belongs to")
	cmd.Flags().BoolVar(&buildGraph, "graph", false, "also run entity/relationship extraction and rebuild the knowledge graph")
	return cmd
}

func runIngest(path, userID string, buildGraph bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := loadConfigOrExit(logger)

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	pipeline, cleanup, err := buildPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer cleanup()

	req := service.IngestRequest{
		DocumentID: uuid.NewString(),
		OwnerID:    userID,
		Filename:   filepath.Base(path),
		Text:       string(text),
	}

	ctx := context.Background()
	result, err := pipeline.IngestDocument(ctx, req)
	if err != nil {
		return fmt.Errorf("ingesting document: %w", err)
	}
	logger.Info("ingested document", "document_id", req.DocumentID, "chunks", result.ChunksIndexed)

	if buildGraph {
		if err := pipeline.BuildGraphForDocument(ctx, req); err != nil {
			return fmt.Errorf("building graph: %w", err)
		}
		logger.Info("rebuilt knowledge graph", "document_id", req.DocumentID)
	}
	return nil
}
