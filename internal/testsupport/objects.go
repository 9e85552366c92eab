package testsupport

import (
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PNGHeader is the smallest prefix filetype recognises as a PNG.
var PNGHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

// ObjectStore is an in-memory stand-in for an S3 bucket.
type ObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	heads   int
	HeadErr error
}

func NewObjectStore(seed map[string][]byte) *ObjectStore {
	objects := make(map[string][]byte, len(seed))
	for k, v := range seed {
		objects[k] = v
	}
	return &ObjectStore{objects: objects}
}

func (m *ObjectStore) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads++
	if m.HeadErr != nil {
		return nil, m.HeadErr
	}
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *ObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *ObjectStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *ObjectStore) Heads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heads
}
