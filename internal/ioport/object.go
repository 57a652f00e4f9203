package ioport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig locates an S3-compatible object store.
type ObjectConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// ObjectConfigFromEnv reads IMAGEFLOW_S3_* variables over the defaults of a
// local MinIO.
func ObjectConfigFromEnv() (ObjectConfig, error) {
	useSSL := false
	if v := strings.TrimSpace(os.Getenv("IMAGEFLOW_S3_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ObjectConfig{}, fmt.Errorf("IMAGEFLOW_S3_USE_SSL: %w", err)
		}
		useSSL = b
	}
	cfg := ObjectConfig{
		Endpoint:  envOr("IMAGEFLOW_S3_ENDPOINT", "localhost:9000"),
		AccessKey: envOr("IMAGEFLOW_S3_ACCESS_KEY", ""),
		SecretKey: envOr("IMAGEFLOW_S3_SECRET_KEY", ""),
		Region:    envOr("IMAGEFLOW_S3_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    envOr("IMAGEFLOW_S3_BUCKET", "images"),
	}
	return cfg, nil
}

// Validate checks that the config can build a client.
func (c ObjectConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// ObjectStore is the subset of an object store the ports need.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// MinioStore is an ObjectStore backed by minio-go.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore builds a client from cfg.
func NewMinioStore(cfg ObjectConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, bucket, key, body, size, opts); err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// ObjectPort reads or writes one object.
type ObjectPort struct {
	id     int
	dir    Direction
	store  ObjectStore
	bucket string
	key    string
}

// NewObjectInput returns a Source reading bucket/key.
func NewObjectInput(id int, store ObjectStore, bucket, key string) *ObjectPort {
	return &ObjectPort{id: id, dir: In, store: store, bucket: bucket, key: key}
}

// NewObjectOutput returns a Sink uploading to bucket/key when the writer is
// closed.
func NewObjectOutput(id int, store ObjectStore, bucket, key string) *ObjectPort {
	return &ObjectPort{id: id, dir: Out, store: store, bucket: bucket, key: key}
}

func (p *ObjectPort) IOID() int { return p.id }

func (p *ObjectPort) Direction() Direction { return p.dir }

func (p *ObjectPort) Hint() string { return p.key }

// Open fetches the object.
func (p *ObjectPort) Open(ctx context.Context) (io.ReadCloser, error) {
	if p.dir != In {
		return nil, fmt.Errorf("%s is not readable", Describe(p))
	}
	return p.store.Get(ctx, p.bucket, p.key)
}

// Create buffers the encoded bytes and uploads them on Close.
func (p *ObjectPort) Create(ctx context.Context) (io.WriteCloser, error) {
	if p.dir != Out {
		return nil, fmt.Errorf("%s is not writable", Describe(p))
	}
	return &objectWriter{ctx: ctx, port: p}, nil
}

type objectWriter struct {
	ctx  context.Context
	port *ObjectPort
	buf  bytes.Buffer
}

func (w *objectWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *objectWriter) Close() error {
	data := w.buf.Bytes()
	contentType := http.DetectContentType(data)
	return w.port.store.Put(w.ctx, w.port.bucket, w.port.key, bytes.NewReader(data), int64(len(data)), contentType)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
