package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcinparda/actual/internal/fault"
	"github.com/marcinparda/actual/internal/scanning"
)

// IDGenerator generates unique file identifiers
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates opaque ids using UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt upload, retrieval, deletion and extraction.
type Service struct {
	index       Index
	storage     Storage
	scanner     scanning.Scanner
	maxSize     int64
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// maxSize is the upload ceiling in bytes; zero disables the check.
func NewService(index Index, storage Storage, scanner scanning.Scanner, maxSize int64) *Service {
	return &Service{
		index:       index,
		storage:     storage,
		scanner:     scanner,
		maxSize:     maxSize,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(index Index, storage Storage, scanner scanning.Scanner, maxSize int64, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		index:       index,
		storage:     storage,
		scanner:     scanner,
		maxSize:     maxSize,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Store validates and persists an uploaded image, returning its record.
// The file is stored under one canonical filename derived from the id, so
// the id-to-file mapping is exact for the file's whole lifetime.
func (s *Service) Store(data []byte, contentType string) (*StoredReceipt, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	ext, ok := extensionForType(contentType)
	if !ok {
		return nil, fault.Errorf(fault.KindValidation, "unsupported receipt type %q", contentType)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, fault.Errorf(fault.KindValidation, "receipt exceeds the maximum size of %d bytes", s.maxSize)
	}

	id := s.idGenerator.Generate()
	rec := &StoredReceipt{
		FileID:      id,
		Filename:    id + ext,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   s.timeSource.Now(),
	}

	if _, err := s.storage.Save(rec.Filename, data); err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	if err := s.index.Put(rec); err != nil {
		// Keep the id-to-file mapping consistent: no index entry, no file.
		if delErr := s.storage.Delete(rec.Filename); delErr != nil {
			slog.Warn("Failed to remove file after index failure", "filename", rec.Filename, "error", delErr)
		}
		return nil, fmt.Errorf("indexing receipt: %w", err)
	}

	return rec, nil
}

// Retrieve returns the stored bytes and record for an exact fileId.
func (s *Service) Retrieve(fileID string) ([]byte, *StoredReceipt, error) {
	rec, err := s.index.Get(fileID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.storage.Get(rec.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("getting receipt file: %w", err)
	}

	return data, rec, nil
}

// Delete removes a receipt's file and index entry.
func (s *Service) Delete(fileID string) error {
	rec, err := s.index.Get(fileID)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(rec.Filename); err != nil {
		// Orphaned-file cleanup is out of scope; log and keep going so
		// the index entry still disappears.
		slog.Warn("Failed to delete file", "filename", rec.Filename, "error", err)
	}

	if err := s.index.Delete(fileID); err != nil {
		return fmt.Errorf("deleting receipt from index: %w", err)
	}
	return nil
}

// Process runs extraction over a stored receipt. The scanner call is a
// single blocking model invocation; ctx carries the caller's timeout and
// expiry surfaces as a processing failure.
func (s *Service) Process(ctx context.Context, fileID string, categories []scanning.Category) (*scanning.Result, error) {
	rec, err := s.index.Get(fileID)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.Get(rec.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting receipt file: %w", err)
	}

	result, err := s.scanner.ScanReceipt(ctx, data, rec.ContentType, categories)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"file_id", fileID,
			"content_type", rec.ContentType,
			"file_size", len(data),
			"error", err,
		)
		// The stored file is untouched; extraction is re-runnable from
		// the same fileId.
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	return result, nil
}
