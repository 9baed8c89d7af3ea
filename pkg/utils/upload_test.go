package utils

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newUploadRequest(t *testing.T, size int) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("x"), size)); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestReadFormFileWithinLimit(t *testing.T) {
	req := newUploadRequest(t, 100)
	LimitBody(httptest.NewRecorder(), req, 4096)
	defer CleanupMultipart(req)

	data, header, err := ReadFormFile(req, "file", 4096)
	if err != nil {
		t.Fatalf("ReadFormFile err: %v", err)
	}
	if len(data) != 100 || header.Filename != "clip.wav" {
		t.Fatalf("unexpected result: %d bytes, %q", len(data), header.Filename)
	}
}

func TestReadFormFileOverLimit(t *testing.T) {
	req := newUploadRequest(t, 8192)
	LimitBody(httptest.NewRecorder(), req, 1024)
	defer CleanupMultipart(req)

	_, _, err := ReadFormFile(req, "file", 1024)
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("expected ErrUploadTooLarge, got %v", err)
	}
	if status := UploadErrorStatus(err); status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", status)
	}
}

func TestReadFormFileMissingField(t *testing.T) {
	req := newUploadRequest(t, 10)
	defer CleanupMultipart(req)

	_, _, err := ReadFormFile(req, "audio", 4096)
	if !errors.Is(err, ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
	if status := UploadErrorStatus(err); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}
