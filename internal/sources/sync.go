// Package sources keeps the bank in step with question files kept outside
// it, in local directories or git repositories.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/qbank/internal/bank"
	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/fingerprint"
	"github.com/conorfennell/qbank/internal/storage"
	"github.com/conorfennell/qbank/internal/transfer"
)

// Store is the persistence used by a Syncer.
type Store interface {
	Add(ctx context.Context, q domain.Question) (string, error)
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64) error
	DeleteSource(ctx context.Context, id int64) error
}

// ErrSourceExists is returned when a source path is added twice.
var ErrSourceExists = errors.New("source already exists")

// Report summarises a sync run.
type Report struct {
	Sources int
	Files   int
	Added   int
	Skipped int
	Errors  int
}

// Syncer imports question files from the configured sources.
type Syncer struct {
	db       Store
	reposDir string
	progress io.Writer
	gitSync  func(ctx context.Context, repoURL, localPath string, progress io.Writer) error
}

// NewSyncer returns a Syncer that checks git sources out under reposDir.
func NewSyncer(db Store, reposDir string, progress io.Writer) *Syncer {
	if progress == nil {
		progress = io.Discard
	}
	return &Syncer{
		db:       db,
		reposDir: reposDir,
		progress: progress,
		gitSync:  syncRepo,
	}
}

// AddSource registers a local directory or git URL. Local paths are stored
// in absolute form.
func (s *Syncer) AddSource(ctx context.Context, path string) (*storage.Source, error) {
	sourceType := storage.SourceLocal
	if IsGitURL(path) {
		sourceType = storage.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %s: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("source %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := s.db.FindSourceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrSourceExists
	}

	id, err := s.db.InsertSource(ctx, path, sourceType)
	if err != nil {
		return nil, err
	}
	return &storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// RemoveSource forgets a source. Questions already imported from it stay.
func (s *Syncer) RemoveSource(ctx context.Context, id int64) error {
	return s.db.DeleteSource(ctx, id)
}

// List returns the registered sources.
func (s *Syncer) List(ctx context.Context) ([]storage.Source, error) {
	return s.db.GetAllSources(ctx)
}

// Sync iterates over all sources and imports the questions not yet in the
// bank. A failing file or source is logged and counted; the run goes on.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var report Report
	slog.Info("Starting sync process for all sources...")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with 'qbank source add <path/or/url.git>'")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		report.Sources++

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := gitURLToLocalPath(s.reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			if err := s.gitSync(ctx, source.Path, localRepoPath, s.progress); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors++
				continue
			}
			dir = localRepoPath
		}

		s.reconcileDir(ctx, dir, &report)

		if err := s.db.UpdateSourceLastScanned(ctx, source.ID); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}
	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"files", report.Files,
		"added", report.Added,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *Syncer) reconcileDir(ctx context.Context, dir string, report *Report) {
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		format, err := transfer.FormatFromFilename(d.Name())
		if err != nil {
			return nil // not a question file
		}
		report.Files++
		if err := s.importFile(ctx, path, format, report); err != nil {
			slog.Warn("Skipping question file", "path", path, "error", err)
			report.Errors++
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("Error walking directory", "path", dir, "error", walkErr)
		report.Errors++
	}
}

func (s *Syncer) importFile(ctx context.Context, path string, format transfer.Format, report *Report) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := transfer.Decode(f, format)
	if err != nil {
		return err
	}
	qs, err := bank.Prepare(recs)
	if err != nil {
		return err
	}

	for _, q := range qs {
		if q.IsVacuous() {
			continue
		}
		fp := fingerprint.Of(q)
		found, err := s.db.HasFingerprint(ctx, fp)
		if err != nil {
			return err
		}
		if found {
			report.Skipped++
			continue
		}
		if _, err := s.db.Add(ctx, q); err != nil {
			return fmt.Errorf("failed to add question from %s: %w", filepath.Base(path), err)
		}
		slog.Debug("New question found, inserting...", "fingerprint", fp[:12], "file", strings.TrimPrefix(path, s.reposDir))
		report.Added++
	}
	return nil
}
