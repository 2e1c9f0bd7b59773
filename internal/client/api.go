package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/jasonhq/relay/internal/domain"
)

// JoinResult is what a join attempt produced: either immediate membership
// or a pending join request on a private channel.
type JoinResult struct {
	Joined  bool                `json:"joined"`
	Request *domain.JoinRequest `json:"request,omitempty"`
}

// API is the request/response collaborator surface the sync core refetches
// from. The server implements it over HTTP; tests inject fakes.
type API interface {
	ListChannels(ctx context.Context, filter domain.ChannelFilter) ([]domain.Channel, error)
	JoinChannel(ctx context.Context, channelID, message string) (*JoinResult, error)
	LeaveChannel(ctx context.Context, channelID string) error
	ChannelMessages(ctx context.Context, channelID string) ([]domain.Message, error)
	Thread(ctx context.Context, otherUserID string) ([]domain.DirectMessage, error)
	Conversations(ctx context.Context) ([]domain.DMConversation, error)
	MarkThreadRead(ctx context.Context, otherUserID string) error
	Presence(ctx context.Context) ([]domain.PresenceRecord, error)
	Uploads(ctx context.Context) ([]domain.Upload, error)
	UploadFile(ctx context.Context, fileName string, r io.Reader) (*domain.Upload, error)
}

// HTTPAPI talks to the relay server's REST endpoints with a bearer token.
type HTTPAPI struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{BaseURL: baseURL, Token: token, Client: http.DefaultClient}
}

func (a *HTTPAPI) ListChannels(ctx context.Context, filter domain.ChannelFilter) ([]domain.Channel, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Tier != nil {
		q.Set("tier", string(*filter.Tier))
	}
	if filter.ShowPrivate {
		q.Set("showPrivate", "true")
	}
	if filter.ShowArchived {
		q.Set("showArchived", "true")
	}
	var channels []domain.Channel
	if err := a.get(ctx, "/api/v1/channels?"+q.Encode(), &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

func (a *HTTPAPI) JoinChannel(ctx context.Context, channelID, message string) (*JoinResult, error) {
	body := map[string]string{"message": message}
	var result JoinResult
	if err := a.post(ctx, "/api/v1/channels/"+channelID+"/join", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (a *HTTPAPI) LeaveChannel(ctx context.Context, channelID string) error {
	return a.post(ctx, "/api/v1/channels/"+channelID+"/leave", nil, nil)
}

func (a *HTTPAPI) ChannelMessages(ctx context.Context, channelID string) ([]domain.Message, error) {
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := a.get(ctx, "/api/v1/channels/"+channelID+"/messages", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *HTTPAPI) Thread(ctx context.Context, otherUserID string) ([]domain.DirectMessage, error) {
	var resp struct {
		Messages []domain.DirectMessage `json:"messages"`
	}
	if err := a.get(ctx, "/api/v1/dms/"+otherUserID, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (a *HTTPAPI) Conversations(ctx context.Context) ([]domain.DMConversation, error) {
	var convs []domain.DMConversation
	if err := a.get(ctx, "/api/v1/dms", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (a *HTTPAPI) MarkThreadRead(ctx context.Context, otherUserID string) error {
	return a.post(ctx, "/api/v1/dms/"+otherUserID+"/read", nil, nil)
}

func (a *HTTPAPI) Presence(ctx context.Context) ([]domain.PresenceRecord, error) {
	var records []domain.PresenceRecord
	if err := a.get(ctx, "/api/v1/presence", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *HTTPAPI) Uploads(ctx context.Context) ([]domain.Upload, error) {
	var uploads []domain.Upload
	if err := a.get(ctx, "/api/v1/uploads", &uploads); err != nil {
		return nil, err
	}
	return uploads, nil
}

func (a *HTTPAPI) UploadFile(ctx context.Context, fileName string, r io.Reader) (*domain.Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/v1/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload failed: status %d", resp.StatusCode)
	}
	var up domain.Upload
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return nil, err
	}
	return &up, nil
}

func (a *HTTPAPI) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *HTTPAPI) post(ctx context.Context, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.do(req, out)
}

func (a *HTTPAPI) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusConflict:
		return ErrChannelArchived
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("request %s: status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
