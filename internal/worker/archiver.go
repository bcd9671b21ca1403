package worker

import (
	"context"
	"io"

	"photokeeper-go/pkg/storage"
)

// MinioArchiver 把归档桶适配为 Pipeline 的 Archiver。
type MinioArchiver struct {
	Bucket string
}

// Archive 将文件内容上传到归档桶，返回归档对象路径。
func (a MinioArchiver) Archive(ctx context.Context, contentHash string, reader io.Reader, size int64) (string, error) {
	return storage.ArchiveContent(ctx, a.Bucket, contentHash, reader, size)
}
