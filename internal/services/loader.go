package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aquamon/internal/logger"
	"aquamon/internal/models"
	"aquamon/internal/upstream"
)

// BatchWriter stores readings in bulk
type BatchWriter interface {
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)
}

// feedExport is the body of a ThingSpeak feeds.json download
type feedExport struct {
	Feeds []upstream.Payload `json:"feeds"`
}

// Loader backfills the store from ThingSpeak feed exports
type Loader struct {
	store  BatchWriter
	logger *logger.Logger
}

// NewLoader creates a new Loader instance
func NewLoader(store BatchWriter, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{store: store, logger: log.WithComponent("loader")}
}

// LoadFromFile loads one feed export into the store, as CSV when the
// file has a .csv extension and as JSON otherwise
func (l *Loader) LoadFromFile(ctx context.Context, filePath string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		return l.LoadFromCSV(ctx, file)
	}
	return l.LoadFromReader(ctx, file)
}

// LoadFromFolder loads every .json and .csv feed export in folderPath
func (l *Loader) LoadFromFolder(ctx context.Context, folderPath string) (int, int, error) {
	startTime := time.Now()

	if !filepath.IsAbs(folderPath) {
		folderPath = filepath.Join(".", folderPath)
	}
	l.logger.Info().Str("folder", folderPath).Msg("loading feed exports")

	files, err := os.ReadDir(folderPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read folder: %w", err)
	}

	totalCount := 0
	filesCount := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".json", ".csv":
		default:
			continue
		}

		fileStartTime := time.Now()
		count, err := l.LoadFromFile(ctx, filepath.Join(folderPath, file.Name()))
		if err != nil {
			return totalCount, filesCount, fmt.Errorf("failed to load file %s: %w", file.Name(), err)
		}
		l.logger.Info().Str("file", file.Name()).Int("records", count).
			Dur("took", time.Since(fileStartTime)).Msg("loaded feed export")

		totalCount += count
		filesCount++
	}

	l.logger.Info().Int("records", totalCount).Int("files", filesCount).
		Dur("took", time.Since(startTime)).Msg("load completed")
	return totalCount, filesCount, nil
}

// LoadFromReader decodes a JSON feed export and stores its entries. Entries
// without a parseable created_at are skipped, since their sample time is unknown.
func (l *Loader) LoadFromReader(ctx context.Context, reader io.Reader) (int, error) {
	var export feedExport
	dec := json.NewDecoder(reader)
	dec.UseNumber()
	if err := dec.Decode(&export); err != nil {
		return 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return l.storeFeeds(ctx, export.Feeds)
}

// LoadFromCSV reads a ThingSpeak CSV export. The header row names the
// columns (created_at, entry_id, field1...); values are parsed like the
// JSON feed.
func (l *Loader) LoadFromCSV(ctx context.Context, reader io.Reader) (int, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("CSV is empty")
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	feeds := make([]upstream.Payload, 0, len(records)-1)
	for _, row := range records[1:] {
		feed := upstream.Payload{}
		for i, value := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				feed[header[i]] = value
			}
		}
		feeds = append(feeds, feed)
	}

	return l.storeFeeds(ctx, feeds)
}

func (l *Loader) storeFeeds(ctx context.Context, feeds []upstream.Payload) (int, error) {
	var zero time.Time
	readings := make([]models.Reading, 0, len(feeds))
	skipped := 0
	for _, feed := range feeds {
		r := upstream.Normalize(feed, zero)
		if r.Timestamp.IsZero() {
			skipped++
			continue
		}
		readings = append(readings, r)
	}
	if skipped > 0 {
		l.logger.Warn().Int("skipped", skipped).Msg("feed entries without a timestamp")
	}
	if len(readings) == 0 {
		return 0, nil
	}

	return l.store.InsertReadings(ctx, readings)
}
