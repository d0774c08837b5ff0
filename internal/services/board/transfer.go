package board

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"inkboard/internal/format"
	"inkboard/internal/models"
	"inkboard/internal/rpc"
)

// Export builds a portable document with the board's files inlined.
func (s *Service) Export(ctx context.Context, user *models.User, id string) (*format.BoardDocument, error) {
	board, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	doc, err := format.NewBoardDocument(board.Title, board.Scene, s.now())
	if err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return doc, nil
	}

	files, err := s.store.ListBoardFiles(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		data, err := s.readBlob(ctx, file.BlobKey)
		if err != nil {
			return nil, fmt.Errorf("export file %s: %w", file.FileID, err)
		}
		doc.AddFile(file.FileID, file.MimeType, data)
	}
	return doc, nil
}

// Import creates a new board owned by user from a document.
func (s *Service) Import(ctx context.Context, user *models.User, doc *format.BoardDocument) (*models.Board, error) {
	if user == nil {
		return nil, rpc.ErrLoginRequired
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidInput)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	scene, err := doc.Scene()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	title := doc.Title
	if title == "" {
		title = models.DefaultBoardTitle
	}
	board, err := s.createWithScene(ctx, user, title, scene)
	if err != nil {
		return nil, err
	}

	if s.blobs == nil && len(doc.Files) > 0 {
		s.logger.WarnContext(ctx, "imported board files dropped; blob store not configured", "board_id", board.ID, "files", len(doc.Files))
		return board, nil
	}
	for _, file := range doc.Files {
		data, err := file.FileBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrInvalidInput, file.ID, err)
		}
		if _, err := s.PutFile(ctx, user, board.ID, file.ID, file.MimeType, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("import file %s: %w", file.ID, err)
		}
	}
	return board, nil
}

func (s *Service) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
