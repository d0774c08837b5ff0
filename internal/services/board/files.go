package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	"inkboard/internal/blobstore"
	"inkboard/internal/models"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileTooLarge      = errors.New("file exceeds upload limit")
	ErrUnsupportedMedia  = errors.New("unsupported file type")
	ErrFilesUnavailable  = errors.New("file storage is not configured")
	fileIDPattern        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	allowedFileMimeTypes = map[string]struct{}{
		"image/png":     {},
		"image/jpeg":    {},
		"image/svg+xml": {},
		"image/gif":     {},
		"image/webp":    {},
	}
)

// NormalizeMimeType strips parameters and checks the allowlist.
func NormalizeMimeType(raw string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, raw)
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := allowedFileMimeTypes[mediaType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
	}
	return mediaType, nil
}

// PutFile stores file bytes for a board. Uploading an existing file id
// keeps the first upload.
func (s *Service) PutFile(ctx context.Context, user *models.User, boardID, fileID, mimeType string, r io.Reader) (*models.BoardFile, error) {
	if s.blobs == nil {
		return nil, ErrFilesUnavailable
	}
	board, err := s.Get(ctx, user, boardID)
	if err != nil {
		return nil, err
	}
	if !fileIDPattern.MatchString(fileID) {
		return nil, fmt.Errorf("%w: invalid file id", ErrInvalidInput)
	}
	mediaType, err := NormalizeMimeType(mimeType)
	if err != nil {
		return nil, err
	}

	if existing, err := s.store.GetBoardFile(ctx, board.ID, fileID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	s.blobMu.RLock()
	defer s.blobMu.RUnlock()
	put, err := s.blobs.Put(ctx, r, s.maxUploadBytes)
	if errors.Is(err, blobstore.ErrTooLarge) {
		return nil, ErrFileTooLarge
	}
	if err != nil {
		return nil, err
	}

	file := &models.BoardFile{
		BoardID:   board.ID,
		FileID:    fileID,
		MimeType:  mediaType,
		BlobKey:   put.Key,
		SHA256:    put.SHA256,
		SizeBytes: put.SizeBytes,
		CreatedAt: s.now(),
	}
	created, err := s.store.CreateBoardFile(ctx, file)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a race with a concurrent upload of the same id.
		return s.store.GetBoardFile(ctx, board.ID, fileID)
	}
	return file, nil
}

// OpenFile returns a board file and a reader for its bytes.
func (s *Service) OpenFile(ctx context.Context, user *models.User, boardID, fileID string) (*models.BoardFile, io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, nil, ErrFilesUnavailable
	}
	board, err := s.Get(ctx, user, boardID)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.store.GetBoardFile(ctx, board.ID, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file == nil {
		return nil, nil, ErrFileNotFound
	}
	rc, err := s.blobs.Open(ctx, file.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob for %s/%s: %w", board.ID, fileID, err)
	}
	return file, rc, nil
}

// BlobGCResult reports one blob sweep.
type BlobGCResult struct {
	CandidateCount int
	DeletedCount   int
	FailedCount    int
	ReclaimedBytes int64
	DryRun         bool
}

// CollectBlobs finds stored blobs that no board file references and, when
// apply is set, deletes them. Blobs orphaned by cascading deletes, such as
// removing a user, are only reclaimed here.
func (s *Service) CollectBlobs(ctx context.Context, apply bool) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !apply}
	if s.blobs == nil {
		return result, ErrFilesUnavailable
	}
	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	referenced, err := s.store.ReferencedBlobKeys(ctx)
	if err != nil {
		return result, err
	}
	var candidates []blobstore.PutResult
	err = s.blobs.Walk(ctx, func(blob blobstore.PutResult) error {
		if _, ok := referenced[blob.Key]; !ok {
			candidates = append(candidates, blob)
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	result.CandidateCount = len(candidates)

	for _, blob := range candidates {
		if !apply {
			result.ReclaimedBytes += blob.SizeBytes
			continue
		}
		if err := s.blobs.Delete(ctx, blob.Key); err != nil {
			s.logger.WarnContext(ctx, "blob delete failed", "key", blob.Key, "error", err)
			result.FailedCount++
			continue
		}
		result.DeletedCount++
		result.ReclaimedBytes += blob.SizeBytes
	}
	if apply && result.CandidateCount > 0 {
		s.logger.InfoContext(ctx, "unreferenced blobs collected", "deleted", result.DeletedCount, "failed", result.FailedCount, "bytes", result.ReclaimedBytes)
	}
	return result, nil
}
