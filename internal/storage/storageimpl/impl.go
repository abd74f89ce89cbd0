package storageimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vidsnap/vidsnap/internal/storage"
	"github.com/vidsnap/vidsnap/pkg/config"
	"github.com/vidsnap/vidsnap/pkg/errors"
	"github.com/vidsnap/vidsnap/pkg/formatter"
	"github.com/vidsnap/vidsnap/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type StoreImpl struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

func New(opts Opts) *StoreImpl {
	return &StoreImpl{
		baseURL: strings.TrimRight(opts.Config.Storage.BaseURL, "/"),
		token:   opts.Config.Storage.Token,
		client: &http.Client{
			Timeout: time.Duration(opts.Config.Storage.TimeoutSeconds) * time.Second,
		},
		logger: opts.Logger.WithComponent("Storage"),
	}
}

var _ storage.Store = (*StoreImpl)(nil)

func (s *StoreImpl) GenerateUploadURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload-url", nil)
	if err != nil {
		return "", err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.ErrUploadFailed, "issue upload url")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(errors.ErrUploadFailed,
			fmt.Sprintf("issue upload url: status %d", resp.StatusCode))
	}

	var out struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.UploadURL == "" {
		return "", errors.Wrap(errors.ErrUploadFailed, "issue upload url: bad response")
	}
	return out.UploadURL, nil
}

func (s *StoreImpl) Upload(ctx context.Context, uploadURL, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.ErrUploadFailed, "upload blob")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Error("Upload rejected", "status", resp.StatusCode, "body", string(body))
		return "", errors.Wrap(errors.ErrUploadFailed,
			fmt.Sprintf("upload blob: status %d", resp.StatusCode))
	}

	var out struct {
		StorageID string `json:"storageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.StorageID == "" {
		return "", errors.Wrap(errors.ErrUploadFailed, "upload blob: no storageId returned")
	}

	s.logger.Info("Blob uploaded",
		"storage_id", out.StorageID,
		"size", formatter.FormatBytes(int64(len(data))),
		"content_type", contentType,
	)
	return out.StorageID, nil
}

func (s *StoreImpl) ResolveURL(ctx context.Context, storageID string) (string, error) {
	if storageID == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "empty storage id")
	}
	return s.baseURL + "/files/" + storageID, nil
}

func (s *StoreImpl) Delete(ctx context.Context, storageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/files/"+storageID, nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrUploadFailed, "delete blob")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.Wrap(errors.ErrUploadFailed,
			fmt.Sprintf("delete blob: status %d", resp.StatusCode))
	}
	return nil
}

func (s *StoreImpl) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
