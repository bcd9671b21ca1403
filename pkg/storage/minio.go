// Package storage 提供了与对象存储服务（如 MinIO）交互的功能，用于删除前的内容归档。
package storage

import (
	"context"
	"fmt"
	"io"
	"photokeeper-go/internal/config"
	"photokeeper-go/pkg/log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保归档存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ArchiveObjectName 根据内容哈希生成归档对象名。
// 以哈希为键使同一内容的重复归档上传天然幂等。
func ArchiveObjectName(contentHash string) string {
	return fmt.Sprintf("archive/%s", contentHash)
}

// ArchiveContent 将已校验的文件内容上传到归档桶，返回归档对象路径。
// 如果同哈希的对象已存在则直接复用，不重复上传。
func ArchiveContent(ctx context.Context, bucketName, contentHash string, reader io.Reader, size int64) (string, error) {
	objectName := ArchiveObjectName(contentHash)

	// 幂等检查：该哈希已归档过则直接返回
	if _, err := MinioClient.StatObject(ctx, bucketName, objectName, minio.StatObjectOptions{}); err == nil {
		log.Infof("归档对象已存在，跳过上传: %s", objectName)
		return objectName, nil
	}

	_, err := MinioClient.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("上传归档对象失败: %w", err)
	}
	return objectName, nil
}

// GetPresignedURL generates a presigned URL for a given object.
func GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := MinioClient.PresignedGetObject(context.Background(), bucketName, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
