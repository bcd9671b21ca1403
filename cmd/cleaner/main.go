// Package main 是分离式 cleaner worker 进程的入口点。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"photokeeper-go/internal/config"
	"photokeeper-go/internal/worker"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/storage"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化归档用的对象存储客户端
	storage.InitMinIO(cfg.MinIO)

	// 4. 启动 worker 客户端，阻塞到收到停机信号
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("接收到停机信号，正在退出...")
		cancel()
	}()

	client := worker.NewClient(cfg.Worker, worker.MinioArchiver{Bucket: cfg.MinIO.BucketName})
	client.Run(ctx)
	log.Info("cleaner worker 已退出")
}
