package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"regsweep/pkg/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 单次 DeleteObjects 最多 1000 个 key
const maxDeleteBatch = 1000

// API 是 Adapter 用到的 S3 客户端子集，方便测试时替换
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Adapter 实现了 storage.Driver 接口
// 与 registry 的 S3 存储驱动使用同一棵目录树：<bucket>/<prefix>/blobs/...
type Adapter struct {
	client API
	bucket string
	prefix string
}

var _ storage.Driver = (*Adapter)(nil)

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string // 例如 "docker/registry/v2"
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须强制使用 Path Style
		o.UsePathStyle = true
	})

	// 注意：GC 只读+删除，不会自动创建 Bucket
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient 允许注入现有的客户端 (测试或复用连接)
func NewWithClient(client API, bucket, prefix string) *Adapter {
	return &Adapter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// key 将相对路径转换为 S3 Key
func (s *Adapter) key(p string) string {
	p = strings.Trim(p, "/")
	if s.prefix == "" {
		return p
	}
	if p == "" || p == "." {
		return s.prefix
	}
	return s.prefix + "/" + p
}

// dirPrefix 返回用于列举的前缀 (以 "/" 结尾)
func (s *Adapter) dirPrefix(p string) string {
	k := s.key(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

// List 利用 Delimiter 模拟目录：CommonPrefixes 是子目录，Contents 是文件
func (s *Adapter) List(ctx context.Context, p string) ([]string, error) {
	prefix := s.dirPrefix(p)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &storage.ReadError{Op: "list", Path: p, Err: err}
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" {
				names = append(names, name)
			}
		}
	}

	// S3 没有真正的目录：空列表就等于目录不存在
	if len(names) == 0 {
		return nil, fmt.Errorf("list %s: %w", p, storage.ErrNotFound)
	}
	return names, nil
}

func (s *Adapter) Read(ctx context.Context, p string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("read %s: %w", p, storage.ErrNotFound)
		}
		return nil, &storage.ReadError{Op: "read", Path: p, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &storage.ReadError{Op: "read", Path: p, Err: err}
	}
	return data, nil
}

// Delete 删除 path 本身以及 path/ 下的所有对象
func (s *Adapter) Delete(ctx context.Context, p string) error {
	if strings.Trim(p, "/.") == "" {
		return &storage.ReadError{Op: "delete", Path: p, Err: errors.New("refusing to delete storage root")}
	}

	// 1. 收集所有 key (不带 Delimiter，递归列举)
	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.dirPrefix(p)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return &storage.ReadError{Op: "delete", Path: p, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	// path 本身也可能是一个对象 (文件)
	keys = append(keys, s.key(p))

	// 2. 分批删除
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return &storage.ReadError{Op: "delete", Path: p, Err: err}
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return &storage.ReadError{
				Op:   "delete",
				Path: p,
				Err:  fmt.Errorf("%d objects not deleted, first %s: %s", len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message)),
			}
		}
	}
	return nil
}
