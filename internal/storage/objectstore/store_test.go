package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/lock"
)

// fakeS3 honours If-Match / If-None-Match the way S3 conditional writes do.
type fakeS3 struct {
	mu      sync.Mutex
	body    []byte
	etag    string
	exists  bool
	gen     int
	puts    int
	getErr  error
	sneakIn bool
}

func (f *fakeS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	if !f.exists {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	out := &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(bytes.Clone(f.body))),
		ETag: aws.String(f.etag),
	}
	if f.sneakIn {
		f.gen++
		f.etag = fmt.Sprintf(`"etag-%d"`, f.gen)
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if in.IfNoneMatch != nil && f.exists {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "object exists"}
	}
	if in.IfMatch != nil && (!f.exists || aws.ToString(in.IfMatch) != f.etag) {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "etag mismatch"}
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	f.exists = true
	f.gen++
	f.etag = fmt.Sprintf(`"etag-%d"`, f.gen)
	f.puts++
	return &s3.PutObjectOutput{ETag: aws.String(f.etag)}, nil
}

func rec(id string) patient.Record {
	return patient.NewRecord(map[string]string{patient.ColumnID: id, patient.ColumnDate: "2024-01-01"})
}

func newStore(api ObjectAPI) *Store {
	return NewWithAPI(api, "bucket", "patients.csv", lock.NewLocal(5*time.Second), zap.NewNop())
}

func TestAppend_CreatesObject(t *testing.T) {
	fake := &fakeS3{}
	s := newStore(fake)
	ctx := context.Background()

	_, err := s.ReadAll(ctx)
	assert.True(t, errors.Is(err, patient.ErrStorageUnavailable))

	require.NoError(t, s.Append(ctx, rec("P1")))
	require.NoError(t, s.Append(ctx, rec("P2")))

	ds, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "P1", ds[0].ID())
	assert.Equal(t, "P2", ds[1].ID())
}

func TestAppend_ConcurrentWritersAreSerialized(t *testing.T) {
	fake := &fakeS3{}
	s := newStore(fake)

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append(context.Background(), rec(fmt.Sprintf("P%d", i))))
		}()
	}
	wg.Wait()

	ds, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, ds, n)
}

func TestAppend_ETagChangedIsConflict(t *testing.T) {
	fake := &fakeS3{body: []byte("Patient_ID,Date\n"), exists: true, etag: `"etag-0"`, sneakIn: true}
	s := newStore(fake)

	err := s.Append(context.Background(), rec("P1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, patient.ErrConcurrentModification))
	assert.Zero(t, fake.puts)
}

func TestReadAll_ServiceError(t *testing.T) {
	fake := &fakeS3{getErr: errors.New("connection refused")}
	_, err := newStore(fake).ReadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, patient.ErrStorageUnavailable))
}
