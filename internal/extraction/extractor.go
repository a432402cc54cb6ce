package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/platform/storage"
)

const defaultMaxBytes int64 = 50 << 20

// Source is what the extractor needs to know about one document.
type Source struct {
	DocumentID  string
	Key         string
	Name        string
	ContentType string
	Syllabus    string
}

// SourceFor maps a stored document to an extraction source.
func SourceFor(doc *domain.Document) Source {
	src := Source{DocumentID: doc.ID.String()}
	if doc.FilePath != nil {
		src.Key = strings.TrimSpace(*doc.FilePath)
	}
	if doc.FileName != nil {
		src.Name = *doc.FileName
	}
	if doc.FileType != nil {
		src.ContentType = *doc.FileType
	}
	if doc.SyllabusText != nil {
		src.Syllabus = strings.TrimSpace(*doc.SyllabusText)
	}
	return src
}

// Extractor turns a document's source into plain text.
type Extractor interface {
	Extract(ctx context.Context, src Source) (string, error)
}

// OCR recognizes text in scanned pages and images.
type OCR interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Service struct {
	log      *logger.Logger
	objects  storage.ObjectStore
	ocr      OCR
	maxBytes int64
}

// NewService builds the default extractor. ocr may be nil, in which case
// image uploads and PDFs without a text layer are rejected.
func NewService(log *logger.Logger, objects storage.ObjectStore, ocr OCR, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Service{
		log:      log.With("service", "Extractor"),
		objects:  objects,
		ocr:      ocr,
		maxBytes: maxBytes,
	}
}

func (s *Service) Extract(ctx context.Context, src Source) (string, error) {
	if src.Key == "" {
		if src.Syllabus == "" {
			return "", apierr.InvalidInput("document has neither a file nor syllabus text")
		}
		return src.Syllabus, nil
	}
	if s.objects == nil {
		return "", apierr.Internal("object store not configured")
	}
	data, err := s.read(ctx, src.Key)
	if err != nil {
		return "", err
	}
	text, err := s.extractBytes(ctx, src.Name, src.ContentType, data)
	if err != nil {
		return "", err
	}
	text = normalizeText(text)
	if text == "" {
		return "", apierr.InvalidInput("no text could be extracted from %s", displayName(src))
	}
	s.log.Debug("Extracted text", "document_id", src.DocumentID, "bytes", len(data), "chars", len(text))
	if src.Syllabus != "" {
		return src.Syllabus + "\n\n" + text, nil
	}
	return text, nil
}

func (s *Service) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.objects.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apierr.InvalidInput("source file %q not found", key)
		}
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apierr.InvalidInput("source file exceeds %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, apierr.InvalidInput("source file %q is empty", key)
	}
	return data, nil
}

func (s *Service) recognize(ctx context.Context, data []byte, mimeType, why string) (string, error) {
	if s.ocr == nil {
		return "", apierr.InvalidInput("%s requires OCR, which is not configured", why)
	}
	text, err := s.ocr.Recognize(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("ocr %s: %w", mimeType, err)
	}
	return text, nil
}

func displayName(src Source) string {
	if src.Name != "" {
		return src.Name
	}
	return src.Key
}
