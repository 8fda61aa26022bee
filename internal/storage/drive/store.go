// Package drive keeps the dataset as one CSV file on a Google Drive style
// file API, addressed by a fixed file ID.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/lock"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/tabular"
)

const driveScope = "https://www.googleapis.com/auth/drive"

type fileMetadata struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Store has no partial-append primitive: Append downloads the whole file,
// appends in memory and uploads the whole file again. The cycle runs under
// a lock and aborts if the file version moved underneath it.
type Store struct {
	api       *resty.Client
	uploadURL string
	fileID    string
	tokens    oauth2.TokenSource
	locker    lock.Locker
	log       *zap.Logger
}

// New builds a store authenticated with the service-account key in
// cfg.CredentialsFile.
func New(ctx context.Context, cfg config.DriveConfig, locker lock.Locker, log *zap.Logger) (*Store, error) {
	key, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading drive credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(key, driveScope)
	if err != nil {
		return nil, fmt.Errorf("parsing drive credentials: %w", err)
	}
	return NewWithTokenSource(cfg, jwtCfg.TokenSource(ctx), locker, log), nil
}

func NewWithTokenSource(cfg config.DriveConfig, tokens oauth2.TokenSource, locker lock.Locker, log *zap.Logger) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	api := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(0)

	return &Store{
		api:       api,
		uploadURL: cfg.UploadURL,
		fileID:    cfg.FileID,
		tokens:    oauth2.ReuseTokenSource(nil, tokens),
		locker:    locker,
		log:       log,
	}
}

func (s *Store) ReadAll(ctx context.Context) (patient.Dataset, error) {
	body, err := s.download(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := tabular.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding drive file %s: %v", patient.ErrStorageUnavailable, s.fileID, err)
	}
	return ds, nil
}

func (s *Store) Append(ctx context.Context, r patient.Record) error {
	unlock, err := s.locker.Lock(ctx, "drive:"+s.fileID)
	if err != nil {
		return fmt.Errorf("%w: %v", patient.ErrStorageUnavailable, err)
	}
	defer unlock()

	before, err := s.version(ctx)
	if err != nil {
		return err
	}

	ds, err := s.ReadAll(ctx)
	if err != nil {
		return err
	}
	ds = append(ds, r)

	data, err := tabular.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}

	after, err := s.version(ctx)
	if err != nil {
		return err
	}
	if after != before {
		s.log.Warn("drive file changed during append",
			zap.String("file_id", s.fileID),
			zap.String("version_before", before),
			zap.String("version_after", after),
		)
		return fmt.Errorf("%w: drive file %s moved from version %s to %s",
			patient.ErrConcurrentModification, s.fileID, before, after)
	}

	if err := s.upload(ctx, data); err != nil {
		return err
	}

	s.log.Debug("drive file rewritten",
		zap.String("file_id", s.fileID),
		zap.Int("records", len(ds)),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (s *Store) request(ctx context.Context) (*resty.Request, error) {
	tok, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: obtaining drive token: %v", patient.ErrStorageUnavailable, err)
	}
	return s.api.R().SetContext(ctx).SetAuthToken(tok.AccessToken), nil
}

func (s *Store) version(ctx context.Context) (string, error) {
	req, err := s.request(ctx)
	if err != nil {
		return "", err
	}

	var meta fileMetadata
	var apiErr apiError
	resp, err := req.
		SetQueryParam("fields", "id,version").
		SetQueryParam("supportsAllDrives", "true").
		SetResult(&meta).
		SetError(&apiErr).
		Get("/files/" + s.fileID)
	if err := s.check(resp, err, &apiErr, "reading metadata"); err != nil {
		return "", err
	}
	return meta.Version, nil
}

func (s *Store) download(ctx context.Context) ([]byte, error) {
	req, err := s.request(ctx)
	if err != nil {
		return nil, err
	}

	var apiErr apiError
	resp, err := req.
		SetQueryParam("alt", "media").
		SetQueryParam("supportsAllDrives", "true").
		SetError(&apiErr).
		Get("/files/" + s.fileID)
	if err := s.check(resp, err, &apiErr, "downloading"); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (s *Store) upload(ctx context.Context, data []byte) error {
	req, err := s.request(ctx)
	if err != nil {
		return err
	}

	var apiErr apiError
	resp, err := req.
		SetQueryParam("uploadType", "media").
		SetQueryParam("supportsAllDrives", "true").
		SetHeader("Content-Type", "text/csv").
		SetBody(data).
		SetError(&apiErr).
		Patch(s.uploadURL + "/files/" + s.fileID)
	return s.check(resp, err, &apiErr, "uploading")
}

func (s *Store) check(resp *resty.Response, err error, apiErr *apiError, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s drive file %s: %v", patient.ErrStorageUnavailable, op, s.fileID, err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("%w: %s drive file %s: %d %s",
			patient.ErrStorageUnavailable, op, s.fileID, resp.StatusCode(), msg)
	}
	return nil
}
