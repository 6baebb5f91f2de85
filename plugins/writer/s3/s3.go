// Package s3 将输出文档与清单写入 S3 兼容对象存储（minio-go）。
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"llmxml/pkg/contract"
)

// Options 对象存储配置。凭据可直接给出或经环境变量读取。
type Options struct {
	Endpoint     string `json:"endpoint"` // host:port，不含 scheme
	Region       string `json:"region,omitempty"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix,omitempty"` // 对象键前缀
	UseSSL       bool   `json:"use_ssl,omitempty"`
	AccessKey    string `json:"access_key,omitempty"`
	SecretKey    string `json:"secret_key,omitempty"`
	AccessKeyEnv string `json:"access_key_env,omitempty"` // 默认 LLMXML_S3_ACCESS_KEY
	SecretKeyEnv string `json:"secret_key_env,omitempty"` // 默认 LLMXML_S3_SECRET_KEY
}

// Store 实现 contract.Writer；首次写入时确保 bucket 存在。
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	region string

	initOnce sync.Once
	initErr  error
}

func fromEnv(v, env, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	if env == "" {
		env = def
	}
	return strings.TrimSpace(os.Getenv(env))
}

// New 校验配置并创建客户端（不发起网络请求）。
func New(opts *Options) (*Store, error) {
	if opts == nil {
		return nil, fmt.Errorf("s3: %w: options required", contract.ErrInvalidInput)
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	bucket := strings.TrimSpace(opts.Bucket)
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("s3: %w: endpoint and bucket are required", contract.ErrInvalidInput)
	}
	access := fromEnv(opts.AccessKey, opts.AccessKeyEnv, "LLMXML_S3_ACCESS_KEY")
	secret := fromEnv(opts.SecretKey, opts.SecretKeyEnv, "LLMXML_S3_SECRET_KEY")
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3: %w: access key and secret key are required", contract.ErrInvalidInput)
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: init client: %w", err)
	}
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
		region: region,
	}, nil
}

var _ contract.Writer = (*Store)(nil)

func (s *Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if !exists {
			s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		}
	})
	return s.initErr
}

// objectKey 规范化 id；拒绝空键与父级逃逸。
func (s *Store) objectKey(id contract.ArtifactID) (string, error) {
	raw := strings.ReplaceAll(string(id), `\`, "/")
	if strings.HasPrefix(raw, "/") {
		return "", contract.ErrPathInvalid
	}
	rel := path.Clean(raw)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", contract.ErrPathInvalid
	}
	if s.prefix != "" {
		rel = s.prefix + "/" + rel
	}
	return rel, nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".xml":
		return "application/xml"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// Write 读取全部内容后以单次 PutObject 上传。
func (s *Store) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.objectKey(id)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: read %s: %w", id, err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("s3: ensure bucket: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}
