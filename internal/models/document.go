package models

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusProcessing 文档处理中，文档在调用流水线前由外部以该状态创建
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusReady 所有分块都已向量化并保存
	DocStatusReady DocumentStatus = "ready"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	StageDownloading ProcessStage = "downloading"
	StageExtracting  ProcessStage = "extracting"
	StageChunking    ProcessStage = "chunking"
	StageEmbedding   ProcessStage = "embedding"
	StageCompleted   ProcessStage = "completed"
)

// CharsPerPage 估算页码时每页的字符数
// 页码只是粗略定位，并不对应PDF的真实页码
const CharsPerPage = 2000

// Document 文档数据模型
type Document struct {
	ID           string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName     string         `gorm:"not null"`           // 文件名
	FilePath     string         `gorm:"not null"`           // 存储中的文件路径
	FileSize     int64          `gorm:"not null;default:0"` // 文件大小（字节）
	Status       DocumentStatus `gorm:"not null;index"`     // 处理状态
	Progress     int            `gorm:"not null;default:0"` // 处理进度（0-100）
	ChunkCount   int            `gorm:"not null;default:0"` // 分块数量
	Error        string         `gorm:"type:text"`          // 错误信息
	CurrentStage ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	UploadedAt   time.Time      `gorm:"not null;index"`     // 上传时间
	UpdatedAt    time.Time      `gorm:"not null"`           // 更新时间
	ProcessedAt  *time.Time     `gorm:"index"`              // 处理结束时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 已向量化的文档分块
// 每次成功运行中每个分块只写入一次，之后不再原地修改
type DocumentChunk struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"`
	DocumentID string          `gorm:"not null;uniqueIndex:idx_chunk_doc_index"` // 所属文档ID
	ChunkIndex int             `gorm:"not null;uniqueIndex:idx_chunk_doc_index"` // 分块序号，从0开始连续
	Content    string          `gorm:"type:text;not null"`                       // 分块文本
	PageNumber int             `gorm:"not null;default:0"`                       // 估算页码
	Embedding  pgvector.Vector `gorm:"type:vector" json:"-"`                     // 向量
	Metadata   datatypes.JSON  `gorm:"type:json"`                                // 元数据，至少包含字符偏移
	CreatedAt  time.Time       `gorm:"not null"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// ChunkMetadata 分块元数据，偏移按字符计
type ChunkMetadata struct {
	CharStart  int `json:"charStart"`
	CharEnd    int `json:"charEnd"`
	TokenCount int `json:"tokenCount"`
}

// NewChunkMetadata 序列化分块元数据
func NewChunkMetadata(start, end, tokens int) datatypes.JSON {
	// 结构体只含int字段，序列化不会失败
	b, _ := json.Marshal(ChunkMetadata{CharStart: start, CharEnd: end, TokenCount: tokens})
	return datatypes.JSON(b)
}

// ParseMetadata 解析分块元数据
func (c *DocumentChunk) ParseMetadata() (ChunkMetadata, error) {
	var meta ChunkMetadata
	if len(c.Metadata) == 0 {
		return meta, nil
	}
	err := json.Unmarshal(c.Metadata, &meta)
	return meta, err
}

// PageNumberFor 根据字符偏移估算页码，传入的是字符数而不是字节数
func PageNumberFor(startChar int) int {
	return startChar / CharsPerPage
}
