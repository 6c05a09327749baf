package gcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalBucketLifecycle(t *testing.T) {
	bs, err := newLocalBucketService(t.TempDir(), "http://localhost:8000")
	if err != nil {
		t.Fatalf("newLocalBucketService: %v", err)
	}
	ctx := context.Background()

	if err := bs.UploadFile(ctx, BucketCategoryResult, "0xabc/1.png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	rc, err := bs.DownloadFile(ctx, BucketCategoryResult, "0xabc/1.png")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "png-bytes" {
		t.Fatalf("content: want=%q got=%q", "png-bytes", b)
	}

	if got := bs.GetPublicURL(BucketCategoryResult, "0xabc/1.png"); got != "http://localhost:8000/api/photos/result/0xabc/1.png" {
		t.Fatalf("GetPublicURL: got=%q", got)
	}

	if _, err := bs.DownloadFile(ctx, BucketCategoryPhoto, "0xabc/1.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("DownloadFile wrong category: want=ErrObjectNotFound got=%v", err)
	}
}

func TestLocalBucketRejectsTraversal(t *testing.T) {
	bs, err := newLocalBucketService(t.TempDir(), "")
	if err != nil {
		t.Fatalf("newLocalBucketService: %v", err)
	}
	for _, key := range []string{"../escape.png", "", "a/../../x"} {
		if err := bs.UploadFile(context.Background(), BucketCategoryPhoto, key, strings.NewReader("x")); err == nil {
			t.Fatalf("UploadFile(%q): want error", key)
		}
	}
	if _, err := bs.DownloadFile(context.Background(), BucketCategory("secrets"), "a.png"); err == nil {
		t.Fatalf("unknown category: want error")
	}
}
