// Package objectstore keeps the dataset as one CSV object in S3 (or any
// S3-compatible store) and uses the object ETag as a version token.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/lock"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/tabular"
)

// ObjectAPI is the subset of the S3 client the store needs.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	api    ObjectAPI
	bucket string
	key    string
	locker lock.Locker
	log    *zap.Logger
}

func New(ctx context.Context, cfg config.S3Config, locker lock.Locker, log *zap.Logger) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithAPI(client, cfg.Bucket, cfg.Key, locker, log), nil
}

func NewWithAPI(api ObjectAPI, bucket, key string, locker lock.Locker, log *zap.Logger) *Store {
	return &Store{api: api, bucket: bucket, key: key, locker: locker, log: log}
}

func (s *Store) ReadAll(ctx context.Context) (patient.Dataset, error) {
	ds, _, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *Store) Append(ctx context.Context, r patient.Record) error {
	unlock, err := s.locker.Lock(ctx, "s3:"+s.bucket+"/"+s.key)
	if err != nil {
		return fmt.Errorf("%w: %v", patient.ErrStorageUnavailable, err)
	}
	defer unlock()

	ds, etag, err := s.get(ctx)
	switch {
	case errors.Is(err, errNoObject):
		ds = patient.Dataset{}
	case err != nil:
		return err
	}
	ds = append(ds, r)

	data, err := tabular.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	}
	if etag == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(etag)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		if isPreconditionFailure(err) {
			s.log.Warn("object changed during append",
				zap.String("bucket", s.bucket),
				zap.String("key", s.key),
				zap.String("etag", etag),
			)
			return fmt.Errorf("%w: s3://%s/%s: %v", patient.ErrConcurrentModification, s.bucket, s.key, err)
		}
		return fmt.Errorf("%w: writing s3://%s/%s: %v", patient.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	return nil
}

var errNoObject = fmt.Errorf("%w: dataset object does not exist", patient.ErrStorageUnavailable)

func (s *Store) get(ctx context.Context) (patient.Dataset, string, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%w: s3://%s/%s", errNoObject, s.bucket, s.key)
		}
		return nil, "", fmt.Errorf("%w: reading s3://%s/%s: %v", patient.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading s3://%s/%s: %v", patient.ErrStorageUnavailable, s.bucket, s.key, err)
	}

	ds, err := tabular.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decoding s3://%s/%s: %v", patient.ErrStorageUnavailable, s.bucket, s.key, err)
	}
	return ds, aws.ToString(out.ETag), nil
}

func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
