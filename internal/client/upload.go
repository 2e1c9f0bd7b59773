package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
)

// Uploads manages the file-attachment lifecycle:
// selected → uploading → uploaded(fileRef) → parsing → parsed|parse_failed.
// The message carrying the file reference is sent exactly once, only
// after the upload call resolves; a failed upload aborts the send
// entirely so no partial message with a broken link goes out.
type Uploads struct {
	api   API
	store *Store
	log   *zap.SugaredLogger

	mu      sync.RWMutex
	records map[string]domain.Upload
	order   []string
}

func NewUploads(api API, store *Store, log *zap.SugaredLogger) *Uploads {
	if log == nil {
		log = logger.Nop()
	}
	return &Uploads{
		api:     api,
		store:   store,
		log:     log,
		records: make(map[string]domain.Upload),
	}
}

// SendWithFile uploads the file, then sends a channel message carrying
// the resulting file reference.
func (u *Uploads) SendWithFile(ctx context.Context, channelID, content, fileName string, r io.Reader) (string, error) {
	up, err := u.upload(ctx, fileName, r)
	if err != nil {
		return "", err
	}
	return u.store.Send(ctx, channelID, content, &Attachment{
		FileURL:  up.FileURL,
		FileName: up.FileName,
	})
}

// SendDMWithFile is the direct-message variant.
func (u *Uploads) SendDMWithFile(ctx context.Context, receiverID, content, fileName string, r io.Reader) (string, error) {
	up, err := u.upload(ctx, fileName, r)
	if err != nil {
		return "", err
	}
	return u.store.SendDM(ctx, receiverID, content, &Attachment{
		FileURL:  up.FileURL,
		FileName: up.FileName,
	})
}

func (u *Uploads) upload(ctx context.Context, fileName string, r io.Reader) (*domain.Upload, error) {
	up, err := u.api.UploadFile(ctx, fileName, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	u.mu.Lock()
	u.upsertLocked(*up)
	u.mu.Unlock()
	return up, nil
}

// Refresh refetches the upload list.
func (u *Uploads) Refresh(ctx context.Context) error {
	ups, err := u.api.Uploads(ctx)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = make(map[string]domain.Upload, len(ups))
	u.order = u.order[:0]
	for _, up := range ups {
		u.upsertLocked(up)
	}
	return nil
}

// ApplyUploaded merges a file_uploaded event.
func (u *Uploads) ApplyUploaded(up domain.Upload) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.upsertLocked(up)
}

// ApplyResumeParsed patches the parse result into the one matching record.
// The patch is idempotent and leaves unrelated records untouched; an
// unknown file id is dropped.
func (u *Uploads) ApplyResumeParsed(fileID string, parsed json.RawMessage, failed bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec, ok := u.records[fileID]
	if !ok {
		u.log.Debugw("resume_parsed for unknown upload", "fileId", fileID)
		return
	}
	if failed {
		rec.ParseStatus = domain.ParseFailed
	} else {
		rec.ParseStatus = domain.ParseDone
		rec.ParsedData = parsed
	}
	u.records[fileID] = rec
}

// Get returns a single upload record.
func (u *Uploads) Get(fileID string) (domain.Upload, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	rec, ok := u.records[fileID]
	return rec, ok
}

// Records returns upload records in first-seen order.
func (u *Uploads) Records() []domain.Upload {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]domain.Upload, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.records[id])
	}
	return out
}

func (u *Uploads) upsertLocked(up domain.Upload) {
	if _, seen := u.records[up.ID]; !seen {
		u.order = append(u.order, up.ID)
	}
	u.records[up.ID] = up
}
