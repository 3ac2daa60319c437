package models

import "errors"

// 流水线错误分类
// 调用方通过 errors.Is 判断错误类别，原始错误通过 errors.As 仍可取到
var (
	// ErrDocumentNotFound 文档不存在错误
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStorage 文件存储读取失败
	ErrStorage = errors.New("storage error")

	// ErrExtraction 文本提取失败（损坏、不支持或为空）
	ErrExtraction = errors.New("extraction error")

	// ErrEmbeddingProvider 向量化服务调用失败，包含限流
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrPersistence 数据库写入失败
	ErrPersistence = errors.New("persistence error")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")
)
