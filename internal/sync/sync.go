// Package sync imports every vocabulary file of the registered sources.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/lexicard/internal/clock"
	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/fingerprint"
	"github.com/conorfennell/lexicard/internal/gitsource"
	"github.com/conorfennell/lexicard/internal/importer"
	"github.com/conorfennell/lexicard/internal/parser"
	"github.com/conorfennell/lexicard/internal/storage"
)

// Extensions of the files read from a source.
var Extensions = []string{".tsv", ".txt"}

// Store is the source registry and import history the syncer reads.
type Store interface {
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	LastContentHash(ctx context.Context, source string) (string, error)
}

// Importer imports one batch.
type Importer interface {
	Import(ctx context.Context, b importer.Batch) (domain.ImportReport, error)
}

// Result summarises one sync run.
type Result struct {
	Sources   int                   `json:"sources"`
	Files     int                   `json:"files"`
	Unchanged int                   `json:"unchanged"`
	Reports   []domain.ImportReport `json:"reports"`
	Errors    []string              `json:"errors"`
}

// Syncer walks sources and imports each file as one batch.
type Syncer struct {
	store    Store
	importer Importer
	reposDir string
	clock    clock.Clock
	hasher   fingerprint.Hasher
	logger   *slog.Logger
	gitSync  func(ctx context.Context, url, localPath string) (string, error)
}

// New creates a Syncer. Git sources are checked out under reposDir.
func New(store Store, imp Importer, reposDir string, clk clock.Clock) *Syncer {
	return &Syncer{
		store:    store,
		importer: imp,
		reposDir: reposDir,
		clock:    clk,
		hasher:   fingerprint.SHA256Hasher{},
		logger:   slog.Default(),
		gitSync:  gitsource.Sync,
	}
}

// WithLogger sets the syncer's logger.
func (s *Syncer) WithLogger(l *slog.Logger) *Syncer {
	s.logger = l
	return s
}

// Run syncs every registered source. A failing source or file is recorded
// in the result and does not stop the others; only failing to list the
// sources is returned as an error. Files whose content is unchanged since
// their last import are skipped.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	s.logger.Info("Starting sync process for all sources...")
	res := Result{Reports: []domain.ImportReport{}, Errors: []string{}}

	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.logger.Info("No sources configured")
		return res, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		res.Sources++

		root := source.Path
		if source.Type == storage.SourceGit {
			root, err = GitURLToLocalPath(s.reposDir, source.Path)
			if err != nil {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("failed to create repos directory: %v", err))
				continue
			}
			rev, err := s.gitSync(ctx, source.Path, root)
			if err != nil {
				s.logger.Error("Error syncing git repo", "url", source.Path, "error", err)
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			s.logger.Info("Git source at revision", "url", source.Path, "revision", rev)
		}

		if err := s.syncTree(ctx, source, root, &res); err != nil {
			s.logger.Error("Error walking directory", "path", root, "error", err)
			res.Errors = append(res.Errors, err.Error())
			continue
		}

		if err := s.store.UpdateSourceLastScanned(ctx, source.ID, s.clock.Now()); err != nil {
			s.logger.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
		}
	}

	s.logger.Info("Sync process complete.",
		"sources", res.Sources,
		"files", res.Files,
		"unchanged", res.Unchanged,
		"errors", len(res.Errors),
	)
	return res, nil
}

// syncTree imports the vocabulary files under root. A local source may
// also name a single file.
func (s *Syncer) syncTree(ctx context.Context, source storage.Source, root string, res *Result) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		label := batchLabel(source, root, path)
		report, imported, err := s.syncFile(ctx, label, path)
		if err != nil {
			s.logger.Warn("Failed to import file", "file", path, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", label, err))
			return nil
		}
		res.Files++
		if !imported {
			res.Unchanged++
			return nil
		}
		res.Reports = append(res.Reports, report)
		return nil
	})
}

func (s *Syncer) syncFile(ctx context.Context, label, path string) (domain.ImportReport, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.ImportReport{}, false, err
	}

	if hash, err := s.hasher.Hash(content); err == nil {
		last, err := s.store.LastContentHash(ctx, label)
		if err != nil {
			return domain.ImportReport{}, false, err
		}
		if last == hash {
			s.logger.Debug("File unchanged since last import", "file", path)
			return domain.ImportReport{}, false, nil
		}
	}

	rows, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return domain.ImportReport{}, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	report, err := s.importer.Import(ctx, importer.Batch{Label: label, Rows: rows, Content: content})
	if err != nil {
		return domain.ImportReport{}, false, err
	}
	return report, true, nil
}

// batchLabel names a file's batch by the source it came from: the file path
// for local sources, url#relative/path for git sources.
func batchLabel(source storage.Source, root, path string) string {
	if source.Type != storage.SourceGit {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return source.Path + "#" + filepath.ToSlash(rel)
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DetectSourceType reports whether path names a git repository URL or a
// local path. Local paths are made absolute.
func DetectSourceType(path string) (normalized, sourceType string, err error) {
	if isGitURL(path) {
		return path, storage.SourceGit, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return abs, storage.SourceLocal, nil
}

func isGitURL(s string) bool {
	if strings.HasSuffix(s, ".git") {
		return true
	}
	if strings.HasPrefix(s, "git@") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
		return true
	}
	return false
}

// GitURLToLocalPath maps a repository URL to its checkout directory under
// baseDir, e.g. https://github.com/a/b.git -> baseDir/github.com/a/b.
// A URL whose checkout would land outside baseDir is rejected.
func GitURLToLocalPath(baseDir, repoURL string) (string, error) {
	host, repoPath, err := splitGitURL(repoURL)
	if err != nil {
		return "", err
	}

	root := filepath.Clean(baseDir)
	local := filepath.Join(root, host, strings.TrimSuffix(repoPath, ".git"))
	if !strings.HasPrefix(local, root+string(filepath.Separator)) || local == filepath.Join(root, host) {
		return "", fmt.Errorf("git URL %s escapes the repos directory", repoURL)
	}
	return local, nil
}

// splitGitURL returns the host and repository path of an http(s), ssh,
// scp-like or absolute path URL. Absolute paths use the host "local".
func splitGitURL(repoURL string) (host, repoPath string, err error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil && parsedURL.Host != "" {
		return parsedURL.Host, parsedURL.Path, nil
	}
	// scp-like syntax: git@host:owner/repo.git
	if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
		if host, repoPath, ok := strings.Cut(rest, ":"); ok && host != "" && repoPath != "" {
			return host, repoPath, nil
		}
	}
	if filepath.IsAbs(repoURL) {
		return "local", repoURL, nil
	}
	return "", "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
