package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aicvlab/frameseek/internal/archive"
	"github.com/aicvlab/frameseek/internal/config"
	"github.com/aicvlab/frameseek/internal/embed"
	"github.com/aicvlab/frameseek/internal/search"
	"github.com/aicvlab/frameseek/internal/server"
	"github.com/aicvlab/frameseek/internal/store"
	"github.com/aicvlab/frameseek/internal/translate"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keyframe search HTTP server",
		Long: `Opens the stores built by 'frameseek ingest' read-only and serves
the search API until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	meta, vectors, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer meta.Close()
	defer vectors.Close()

	embedder := embed.Embedder(nil)
	if cfg.Embedder.Endpoint != "" {
		httpEmbedder, err := embed.NewHTTPEmbedder(embed.HTTPConfig{
			Endpoint:   cfg.Embedder.Endpoint,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Search.Dimensions,
			Timeout:    cfg.Embedder.Timeout,
		})
		if err != nil {
			return err
		}
		embedder = embed.NewCachedEmbedder(httpEmbedder, cfg.Embedder.CacheSize)
		defer embedder.Close()
	} else {
		logger.Warn("no embedder endpoint configured, vector channel disabled")
	}

	var translator translate.Translator = translate.Noop{}
	if cfg.Translator.Endpoint != "" {
		translator, err = translate.NewHTTPTranslator(translate.HTTPConfig{
			Endpoint: cfg.Translator.Endpoint,
			Source:   cfg.Translator.Source,
			Target:   cfg.Translator.Target,
			Timeout:  cfg.Translator.Timeout,
		})
		if err != nil {
			return err
		}
		defer translator.Close()
	}

	engine := search.NewEngine(vectors, meta, embedder, translator,
		archive.NewPathResolver(cfg.DataRoot),
		search.EngineConfig{
			WVec:          cfg.Search.WVec,
			WASR:          cfg.Search.WASR,
			WOCR:          cfg.Search.WOCR,
			RRFConstant:   cfg.Search.RRFConstant,
			Oversample:    cfg.Search.Oversample,
			FPS:           cfg.Search.FPS,
			VectorTimeout: cfg.Stores.VectorTimeout,
			StoreTimeout:  cfg.Stores.Timeout,
			EmbedTimeout:  cfg.Embedder.Timeout,
		}, logger)

	srv := server.New(engine, server.Config{
		Addr:             cfg.Server.Addr,
		DataRoot:         cfg.DataRoot,
		PlaceholderImage: cfg.Server.PlaceholderImage,
		RequestTimeout:   cfg.Server.RequestTimeout,
	}, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// openStores opens the serving stores with the bleve indexes attached as
// the primary full-text strategy when their directories exist.
func openStores(cfg *config.Config) (*store.SQLiteStore, *store.HNSWIndex, error) {
	var opts []store.SQLiteStoreOption
	if dirExists(cfg.Stores.ASRIndexPath) {
		idx, err := store.NewBleveTextIndex(cfg.Stores.ASRIndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open asr index: %w", err)
		}
		opts = append(opts, store.WithASRTextIndex(idx))
	}
	if dirExists(cfg.Stores.OCRIndexPath) {
		idx, err := store.NewBleveTextIndex(cfg.Stores.OCRIndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open ocr index: %w", err)
		}
		opts = append(opts, store.WithOCRTextIndex(idx))
	}

	meta, err := store.NewSQLiteStore(store.SQLiteStoreConfig{
		Path: cfg.Stores.MetadataPath,
		FPS:  cfg.Search.FPS,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	vectors, err := store.NewHNSWIndex(store.HNSWIndexConfig{
		Dimensions: cfg.Search.Dimensions,
		M:          cfg.Search.HNSWM,
		EfSearch:   cfg.Search.HNSWEfSearch,
	})
	if err != nil {
		meta.Close()
		return nil, nil, err
	}
	if fileExists(cfg.Stores.VectorPath) {
		if err := vectors.Load(cfg.Stores.VectorPath); err != nil {
			meta.Close()
			return nil, nil, fmt.Errorf("load vector index: %w", err)
		}
	} else {
		slog.Warn("vector index file missing, starting empty",
			slog.String("path", cfg.Stores.VectorPath))
	}

	return meta, vectors, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
