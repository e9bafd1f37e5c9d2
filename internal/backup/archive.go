package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/flate"

	"posevault/internal/domain"
)

// ArchiveError reports an archive that could not be finalized. No partial
// file remains in the archive directory when it is raised.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string { return "archive build failed: " + e.Err.Error() }
func (e *ArchiveError) Unwrap() error { return e.Err }

// Pinger reports the live connectivity of one store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuilderConfig wires a Builder to its stores and directories.
type BuilderConfig struct {
	Poses      domain.PoseRepository
	Assets     domain.AssetRepository
	Log        domain.ProcessingLogRepository
	PoseStore  Pinger
	AssetStore Pinger
	UploadDir  string
	LogDir     string
	ArchiveDir string
}

// Builder snapshots both stores plus the on-disk upload and log directories
// into a single dated zip archive. A snapshot may race in-flight writes;
// the archive is a best-effort recovery point, not a consistency primary.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	return &Builder{cfg: cfg}
}

// poseDump and assetDump are the serialized dump shapes inside an archive.
type poseDump struct {
	ID          string            `json:"id"`
	ImageRef    string            `json:"imageRef"`
	Keypoints   []domain.Keypoint `json:"keypoints"`
	Landmarks   []domain.Keypoint `json:"landmarks,omitempty"`
	Visibility  []float64         `json:"visibility,omitempty"`
	Confidence  float64           `json:"confidence"`
	ImageWidth  int               `json:"imageWidth"`
	ImageHeight int               `json:"imageHeight"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type assetDump struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Path         string    `json:"path"`
	PoseRecordID string    `json:"poseRecordId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// archiveStats is the stats.json entry: counts, live connectivity of both
// stores, and the total asset payload size.
type archiveStats struct {
	GeneratedAt     time.Time `json:"generatedAt"`
	PoseRecords     int       `json:"poseRecords"`
	ImageAssets     int       `json:"imageAssets"`
	LogEntries      int       `json:"logEntries"`
	PoseStore       string    `json:"poseStore"`
	AssetStore      string    `json:"assetStore"`
	AssetBytes      int64     `json:"assetBytes"`
	AssetBytesHuman string    `json:"assetBytesHuman"`
}

// Build writes backup-YYYY-MM-DD.zip into the archive directory and
// returns its path. The zip is assembled in a temp file and renamed into
// place only once fully written, so a failed build leaves nothing in the
// delivery path. A second build on the same day replaces that day's
// archive.
func (b *Builder) Build(ctx context.Context) (string, error) {
	name := fmt.Sprintf("backup-%s.zip", time.Now().Format("2006-01-02"))
	finalPath := filepath.Join(b.cfg.ArchiveDir, name)

	tmp, err := os.CreateTemp(b.cfg.ArchiveDir, ".backup-*.tmp")
	if err != nil {
		return "", &ArchiveError{Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()

	if err := b.write(ctx, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", &ArchiveError{Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", &ArchiveError{Err: fmt.Errorf("close temp file: %w", err)}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", &ArchiveError{Err: fmt.Errorf("publish archive: %w", err)}
	}

	slog.Info("archive built", "archive", name)
	return finalPath, nil
}

func (b *Builder) write(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	records, err := b.allPoses(ctx)
	if err != nil {
		return err
	}
	assets, err := b.allAssets(ctx)
	if err != nil {
		return err
	}

	if err := writeJSONEntry(zw, "pose_records.json", records); err != nil {
		return err
	}
	if err := writeJSONEntry(zw, "image_assets.json", assets); err != nil {
		return err
	}
	if err := writeJSONEntry(zw, "stats.json", b.stats(ctx, records, assets)); err != nil {
		return err
	}
	if err := addDir(zw, b.cfg.UploadDir, "uploads"); err != nil {
		return err
	}
	if err := addDir(zw, b.cfg.LogDir, "logs"); err != nil {
		return err
	}
	return zw.Close()
}

const dumpPageSize = 500

// allPoses reads every PoseRecord newest-first, paging through the store.
func (b *Builder) allPoses(ctx context.Context) ([]poseDump, error) {
	dumps := []poseDump{}
	for offset := 0; ; offset += dumpPageSize {
		page, err := b.cfg.Poses.List(ctx, offset, dumpPageSize)
		if err != nil {
			return nil, fmt.Errorf("read pose records: %w", err)
		}
		for _, rec := range page {
			dumps = append(dumps, poseDump{
				ID:          rec.ID,
				ImageRef:    rec.ImageRef,
				Keypoints:   rec.Keypoints,
				Landmarks:   rec.Landmarks,
				Visibility:  rec.Visibility,
				Confidence:  rec.Confidence,
				ImageWidth:  rec.ImageWidth,
				ImageHeight: rec.ImageHeight,
				CreatedAt:   rec.CreatedAt,
				UpdatedAt:   rec.UpdatedAt,
			})
		}
		if len(page) < dumpPageSize {
			return dumps, nil
		}
	}
}

// allAssets reads every ImageAsset newest-first, paging through the store.
func (b *Builder) allAssets(ctx context.Context) ([]assetDump, error) {
	dumps := []assetDump{}
	for offset := 0; ; offset += dumpPageSize {
		page, err := b.cfg.Assets.List(ctx, offset, dumpPageSize)
		if err != nil {
			return nil, fmt.Errorf("read image assets: %w", err)
		}
		for _, a := range page {
			dumps = append(dumps, assetDump{
				ID:           a.ID,
				Filename:     a.Filename,
				OriginalName: a.OriginalName,
				ContentType:  a.ContentType,
				Size:         a.Size,
				Path:         a.Path,
				PoseRecordID: a.PoseRecordID,
				CreatedAt:    a.CreatedAt,
			})
		}
		if len(page) < dumpPageSize {
			return dumps, nil
		}
	}
}

func (b *Builder) stats(ctx context.Context, records []poseDump, assets []assetDump) archiveStats {
	st := archiveStats{
		GeneratedAt: time.Now().UTC(),
		PoseRecords: len(records),
		ImageAssets: len(assets),
		PoseStore:   probe(ctx, b.cfg.PoseStore),
		AssetStore:  probe(ctx, b.cfg.AssetStore),
	}
	if n, err := b.cfg.Log.Count(ctx); err == nil {
		st.LogEntries = n
	}
	var total int64
	for _, a := range assets {
		total += a.Size
	}
	st.AssetBytes = total
	st.AssetBytesHuman = humanize.Bytes(uint64(total))
	return st
}

func probe(ctx context.Context, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s entry: %w", name, err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// addDir copies every file under dir into the archive below prefix. A
// missing directory is not an error.
func addDir(zw *zip.Writer, dir, prefix string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(prefix + "/" + filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
}
