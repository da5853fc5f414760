package document

import (
	"context"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/document"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/sirupsen/logrus"
)

// Service manages uploaded documents
type Service struct {
	repo persistence.DocumentRepository
}

func NewService(repo persistence.DocumentRepository) *Service {
	return &Service{repo: repo}
}

// Upload validates and stores a file. Validation failures are *document.UploadError.
func (s *Service) Upload(ctx context.Context, upload *document.Upload) (*persistence.Document, error) {
	doc, err := document.Prepare(upload)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"mime_type":   doc.MimeType,
		"size_bytes":  doc.SizeBytes,
	}).Info("Document uploaded")

	return doc, nil
}

// List returns document metadata newest first
func (s *Service) List(ctx context.Context) ([]*persistence.Document, error) {
	return s.repo.FindAll(ctx)
}

// Delete removes a document; a missing one wraps persistence.ErrNotFound
func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logrus.WithField("document_id", id).Info("Document deleted")
	return nil
}
