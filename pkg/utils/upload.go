package utils

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

var (
	ErrMissingFile    = errors.New("file is required")
	ErrUploadTooLarge = errors.New("request body too large")
)

// LimitBody 限制请求体总大小，超出后读取返回 *http.MaxBytesError。
func LimitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
}

// ParseForm 解析 multipart 或 urlencoded 表单。
func ParseForm(r *http.Request, maxBytes int64) error {
	err := r.ParseMultipartForm(maxBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	return tooLarge(err)
}

// ReadFormFile 读取 multipart 表单中 field 对应的整个文件。
// 调用方负责在请求结束后执行 r.MultipartForm.RemoveAll()。
func ReadFormFile(r *http.Request, field string, maxBytes int64) ([]byte, *multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if err = tooLarge(err); errors.Is(err, ErrUploadTooLarge) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, ErrMissingFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", field, err)
	}
	return data, header, nil
}

// UploadErrorStatus 将表单读取错误映射为 HTTP 状态码。
func UploadErrorStatus(err error) int {
	if errors.Is(err, ErrUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// CleanupMultipart 删除 multipart 解析时产生的临时文件。
func CleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func tooLarge(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w (limit %d bytes)", ErrUploadTooLarge, maxErr.Limit)
	}
	return err
}
