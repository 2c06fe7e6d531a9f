package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/longregen/promptforge/internal/adapters/cache"
	"github.com/longregen/promptforge/internal/adapters/metrics"
	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
)

// ManifestFile is the name of the metadata file written next to exported prompts
const ManifestFile = "manifest.yaml"

// ExportManifest describes the exported prompt files
type ExportManifest struct {
	GeneratedAt time.Time                `yaml:"generated_at"`
	Prompts     []*models.ExportedPrompt `yaml:"prompts"`
}

// ExportReport lists what ExportAll wrote and skipped
type ExportReport struct {
	Dir      string          `json:"dir"`
	Exported []string        `json:"exported"`
	Skipped  []SkippedPrompt `json:"skipped"`
}

// ExportCacheConfig bounds the export read cache. TTL caps how long a deploy or
// rollback made by another process can go unseen.
type ExportCacheConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultExportCacheConfig returns the default export cache settings
func DefaultExportCacheConfig() ExportCacheConfig {
	return ExportCacheConfig{Size: 256, TTL: 30 * time.Second}
}

// ExportService serves deployed prompt texts to the serving layer. Reads are
// cached for at most the cache TTL and invalidated at once when this process
// changes a prompt's deployment.
type ExportService struct {
	versions *VersionService
	cache    *cache.LoaderCache[*models.ExportedPrompt]
	clock    func() time.Time
	logger   *zap.Logger
}

// NewExportService creates an export service with an expiring LRU of prompts
func NewExportService(versions *VersionService, cacheConfig ExportCacheConfig, logger *zap.Logger) *ExportService {
	defaults := DefaultExportCacheConfig()
	if cacheConfig.Size <= 0 {
		cacheConfig.Size = defaults.Size
	}
	if cacheConfig.TTL <= 0 {
		cacheConfig.TTL = defaults.TTL
	}

	s := &ExportService{
		versions: versions,
		cache:    cache.NewLoaderCache[*models.ExportedPrompt](cacheConfig.Size, cacheConfig.TTL),
		clock:    versions.clock.Now,
		logger:   logging.OrNop(logger),
	}
	versions.OnChange(s.cache.Invalidate)
	return s
}

// Get returns the deployed prompt, from cache when possible
func (s *ExportService) Get(ctx context.Context, promptID string) (*models.ExportedPrompt, error) {
	if err := ValidatePromptID(promptID); err != nil {
		return nil, err
	}

	exported, hit, err := s.cache.Get(ctx, promptID, s.versions.Export)
	if err != nil {
		metrics.ExportCacheTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if hit {
		metrics.ExportCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.ExportCacheTotal.WithLabelValues("miss").Inc()
	}
	return exported, nil
}

// ExportAll writes <promptID>.txt for every deployed prompt plus a manifest
// into targetDir. Prompts without a deployed version, or whose ID cannot be
// used as a file name, are skipped.
func (s *ExportService) ExportAll(ctx context.Context, targetDir string) (*ExportReport, error) {
	if err := ValidateRequired(targetDir, "target directory"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	ids, err := s.versions.PromptIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &ExportReport{Dir: targetDir}
	manifest := ExportManifest{GeneratedAt: s.clock().UTC()}

	for _, id := range ids {
		if !safeFileName(id) {
			report.Skipped = append(report.Skipped, SkippedPrompt{PromptID: id, Reason: "unsafe_name"})
			continue
		}

		exported, err := s.versions.Export(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			report.Skipped = append(report.Skipped, SkippedPrompt{PromptID: id, Reason: "not_deployed"})
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := writeFileAtomic(filepath.Join(targetDir, id+".txt"), []byte(exported.Text)); err != nil {
			return nil, err
		}
		report.Exported = append(report.Exported, id)
		manifest.Prompts = append(manifest.Prompts, exported)
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(targetDir, ManifestFile), data); err != nil {
		return nil, err
	}

	s.logger.Info("exported deployed prompts",
		zap.String("dir", targetDir),
		zap.Int("exported", len(report.Exported)),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

func safeFileName(id string) bool {
	return filepath.IsLocal(id) &&
		!strings.ContainsAny(id, `/\:`) &&
		!strings.HasPrefix(id, ".") &&
		id+".txt" != ManifestFile
}

// writeFileAtomic writes through a temp file so readers never see a partial prompt
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
