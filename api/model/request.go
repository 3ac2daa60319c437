package model

import (
	"mime/multipart"
)

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // PDF文件
}

// DocumentIDRequest 路径中的文档ID
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required,max=64"`
}

// TaskIDRequest 路径中的任务ID
type TaskIDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}
