package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-ingest/internal/models"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// pageSeparator 页与页之间的分隔符
const pageSeparator = "\n\n"

// PDFExtractor PDF文本提取器
// 先用 pdfcpu 校验文档结构，再用 ledongthuc/pdf 逐页提取文本
type PDFExtractor struct {
	logger *logrus.Logger
	conf   *model.Configuration
}

// NewPDFExtractor 创建PDF文本提取器
func NewPDFExtractor(logger *logrus.Logger) *PDFExtractor {
	if logger == nil {
		logger = logrus.New()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &PDFExtractor{
		logger: logger,
		conf:   conf,
	}
}

// Extract 提取PDF中的文本
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", models.ErrExtraction)
	}

	if err := e.validate(data); err != nil {
		return "", fmt.Errorf("%w: invalid pdf: %w", models.ErrExtraction, err)
	}

	pages, err := e.extractPages(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}

	text := Normalize(strings.Join(pages, pageSeparator))
	if text == "" {
		return "", fmt.Errorf("%w: no text content found in PDF", models.ErrExtraction)
	}

	e.logger.WithFields(logrus.Fields{
		"pages":       len(pages),
		"text_length": len(text),
	}).Debug("Extracted text from PDF")

	return text, nil
}

// validate 使用pdfcpu校验PDF结构
func (e *PDFExtractor) validate(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf validation panicked: %v", r)
		}
	}()

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), e.conf)
	if err != nil {
		return err
	}
	return api.ValidateContext(pdfCtx)
}

// extractPages 按页码顺序提取每页文本，空页返回空字符串
func (e *PDFExtractor) extractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// 解析器遇到异常结构时可能panic，统一转换为错误
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			e.logger.WithField("page", i).Warn("Null page encountered")
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	return pages, nil
}
