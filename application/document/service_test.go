package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/VozVule/local-knowledge/domain/document"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, entity *persistence.Document) error {
	args := m.Called(ctx, entity)
	if args.Error(0) == nil {
		entity.ID = 7
	}
	return args.Error(0)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id uint) (*persistence.Document, error) {
	args := m.Called(ctx, id)
	if doc := args.Get(0); doc != nil {
		return doc.(*persistence.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) FindAll(ctx context.Context) ([]*persistence.Document, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*persistence.Document), args.Error(1)
}

func TestService_Upload(t *testing.T) {
	repo := &MockDocumentRepository{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(d *persistence.Document) bool {
		return d.Filename == "todo.txt" && d.SizeBytes == 4 && d.Checksum != ""
	})).Return(nil).Once()

	doc, err := NewService(repo).Upload(context.Background(), &document.Upload{
		Filename: "todo.txt",
		Content:  strings.NewReader("milk"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(7), doc.ID)
	repo.AssertExpectations(t)
}

func TestService_UploadRejectedBeforeStorage(t *testing.T) {
	repo := &MockDocumentRepository{}

	_, err := NewService(repo).Upload(context.Background(), &document.Upload{
		Filename: "image.gif",
		MimeType: "image/gif",
		Content:  strings.NewReader("GIF89a"),
	})

	var uploadErr *document.UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Equal(t, "unsupported file type", uploadErr.Message)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_UploadStorageFailure(t *testing.T) {
	repo := &MockDocumentRepository{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	_, err := NewService(repo).Upload(context.Background(), &document.Upload{
		Filename: "a.md",
		Content:  strings.NewReader("# a"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store document")
}

func TestService_ListAndDelete(t *testing.T) {
	repo := &MockDocumentRepository{}
	repo.On("FindAll", mock.Anything).Return([]*persistence.Document{{ID: 2}, {ID: 1}}, nil).Once()
	repo.On("Delete", mock.Anything, uint(1)).Return(nil).Once()
	repo.On("Delete", mock.Anything, uint(9)).Return(fmt.Errorf("document not found for deletion: %w", persistence.ErrNotFound)).Once()

	svc := NewService(repo)

	docs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	assert.NoError(t, svc.Delete(context.Background(), 1))
	assert.ErrorIs(t, svc.Delete(context.Background(), 9), persistence.ErrNotFound)
	repo.AssertExpectations(t)
}
