package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aicvlab/frameseek/internal/ingest"
	"github.com/aicvlab/frameseek/internal/store"
)

func newIngestCmd() *cobra.Command {
	var (
		id2indexPath   string
		objectsDir     string
		captionsPath   string
		ocrPath        string
		embeddingsPath string
		batchSize      int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the serving stores from archive export files",
		Long: `Reads the archive exports (id2index map, object detections, caption
and OCR JSONL, embedding JSONL) and writes the metadata database, the
full-text indexes, and the vector index at the paths named in the
config. Existing stores at those paths are extended, not replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := slog.Default()

			for _, path := range []string{
				cfg.Stores.MetadataPath, cfg.Stores.VectorPath,
				cfg.Stores.ASRIndexPath, cfg.Stores.OCRIndexPath,
			} {
				if path == "" {
					continue
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("create store directory: %w", err)
				}
			}

			meta, err := store.NewSQLiteStore(store.SQLiteStoreConfig{
				Path: cfg.Stores.MetadataPath,
				FPS:  cfg.Search.FPS,
			})
			if err != nil {
				return fmt.Errorf("open metadata store: %w", err)
			}
			defer meta.Close()

			vectors, err := store.NewHNSWIndex(store.HNSWIndexConfig{
				Dimensions: cfg.Search.Dimensions,
				M:          cfg.Search.HNSWM,
				EfSearch:   cfg.Search.HNSWEfSearch,
			})
			if err != nil {
				return err
			}
			defer vectors.Close()
			if fileExists(cfg.Stores.VectorPath) {
				if err := vectors.Load(cfg.Stores.VectorPath); err != nil {
					return fmt.Errorf("load vector index: %w", err)
				}
			}

			var asrIdx, ocrIdx *store.BleveTextIndex
			if cfg.Stores.ASRIndexPath != "" {
				if asrIdx, err = store.NewBleveTextIndex(cfg.Stores.ASRIndexPath); err != nil {
					return fmt.Errorf("open asr index: %w", err)
				}
				defer asrIdx.Close()
			}
			if cfg.Stores.OCRIndexPath != "" {
				if ocrIdx, err = store.NewBleveTextIndex(cfg.Stores.OCRIndexPath); err != nil {
					return fmt.Errorf("open ocr index: %w", err)
				}
				defer ocrIdx.Close()
			}

			pipeline := ingest.New(meta, vectors, asrIdx, ocrIdx, ingest.Config{
				ID2IndexPath:   id2indexPath,
				ObjectsDir:     objectsDir,
				CaptionsPath:   captionsPath,
				OCRPath:        ocrPath,
				EmbeddingsPath: embeddingsPath,
				BatchSize:      batchSize,
			}, logger)

			stats, err := pipeline.Run(ctx)
			if err != nil {
				return err
			}

			if cfg.Stores.VectorPath != "" && stats.Embeddings > 0 {
				if err := vectors.Save(cfg.Stores.VectorPath); err != nil {
					return fmt.Errorf("save vector index: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"ingested %d keyframes, %d object rows, %d captions, %d ocr texts, %d embeddings\n",
				stats.Keyframes, stats.Objects, stats.Captions, stats.OCRTexts, stats.Embeddings)
			return nil
		},
	}

	cmd.Flags().StringVar(&id2indexPath, "id2index", "", "Path to the id2index JSON map (required)")
	cmd.Flags().StringVar(&objectsDir, "objects", "", "Directory of per-frame detection JSONs")
	cmd.Flags().StringVar(&captionsPath, "captions", "", "Path to caption JSONL")
	cmd.Flags().StringVar(&ocrPath, "ocr", "", "Path to OCR JSONL")
	cmd.Flags().StringVar(&embeddingsPath, "embeddings", "", "Path to embedding JSONL")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per store transaction (default 1000)")
	_ = cmd.MarkFlagRequired("id2index")

	return cmd
}
