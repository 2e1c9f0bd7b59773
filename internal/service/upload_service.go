package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/repository"
)

var ErrUploadNotFound = errors.New("upload not found")

// FileStore persists uploaded bytes and returns a serving URL. Storage
// internals are outside this core.
type FileStore interface {
	Save(ctx context.Context, id, fileName string, r io.Reader) (fileURL string, err error)
}

// ResumeParser extracts structured data from a stored resume. Parsing is
// long-running and external; the result comes back asynchronously.
type ResumeParser interface {
	Parse(ctx context.Context, fileURL string) ([]byte, error)
}

type UploadService struct {
	uploadRepo  repository.UploadRepository
	files       FileStore
	parser      ResumeParser
	notifier    Notifier
	log         *zap.SugaredLogger
	parseBudget time.Duration
}

func NewUploadService(uploadRepo repository.UploadRepository, files FileStore, parser ResumeParser, log *zap.SugaredLogger) *UploadService {
	if log == nil {
		log = logger.Nop()
	}
	return &UploadService{
		uploadRepo:  uploadRepo,
		files:       files,
		parser:      parser,
		log:         log,
		parseBudget: 2 * time.Minute,
	}
}

func (s *UploadService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Store saves the file, records the upload, emits file_uploaded, and for
// resumes kicks off the async parse. The caller's message send happens
// separately, only after this returns.
func (s *UploadService) Store(ctx context.Context, userID, fileName, contentType string, r io.Reader) (*domain.Upload, error) {
	id := uuid.NewString()
	fileURL, err := s.files.Save(ctx, id, fileName, r)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	up := &domain.Upload{
		ID:          id,
		UserID:      userID,
		FileName:    fileName,
		FileURL:     fileURL,
		ContentType: contentType,
		IsResume:    isResume(fileName),
		ParseStatus: domain.ParseNone,
		CreatedAt:   time.Now(),
	}
	if up.IsResume && s.parser != nil {
		up.ParseStatus = domain.ParseRunning
	}
	if err := s.uploadRepo.Create(ctx, up); err != nil {
		return nil, fmt.Errorf("recording upload: %w", err)
	}

	if s.notifier != nil {
		s.notifier.FileUploaded(up)
	}
	if up.ParseStatus == domain.ParseRunning {
		go s.parse(up.ID, up.UserID, up.FileURL)
	}
	return up, nil
}

func (s *UploadService) Get(ctx context.Context, id string) (*domain.Upload, error) {
	up, err := s.uploadRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, ErrUploadNotFound
	}
	return up, nil
}

func (s *UploadService) ListByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	uploads, err := s.uploadRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}
	return uploads, nil
}

// parse runs detached from the upload request; completion is delivered as
// a resume_parsed event, not a response.
func (s *UploadService) parse(id, userID, fileURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.parseBudget)
	data, err := s.parser.Parse(ctx, fileURL)
	cancel()

	// Record the outcome on its own context: when the parse fails by
	// hitting the budget above, the row must still move out of "parsing".
	rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer rcancel()

	if err != nil {
		s.log.Warnw("resume parse failed", "fileId", id, "error", err)
		if err := s.uploadRepo.SetParseResult(rctx, id, domain.ParseFailed, nil); err != nil {
			s.log.Errorw("recording parse failure", "fileId", id, "error", err)
		}
		if s.notifier != nil {
			s.notifier.ResumeParsed(userID, id, nil, true)
		}
		return
	}

	if err := s.uploadRepo.SetParseResult(rctx, id, domain.ParseDone, data); err != nil {
		s.log.Errorw("recording parse result", "fileId", id, "error", err)
		return
	}
	if s.notifier != nil {
		s.notifier.ResumeParsed(userID, id, data, false)
	}
}

func isResume(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf", ".doc", ".docx":
		return true
	}
	return false
}
