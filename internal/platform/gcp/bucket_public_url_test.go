package gcp

import "testing"

func TestPublicBaseURL(t *testing.T) {
	emulator := ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443/"}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	if got, err := publicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS}); err != nil || got != "" {
		t.Fatalf("gcs default: want empty got=%q err=%v", got, err)
	}
	if got, _ := publicBaseURL(emulator); got != "http://fake-gcs:4443" {
		t.Fatalf("emulator fallback: want=%q got=%q", "http://fake-gcs:4443", got)
	}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:4443/")
	if got, _ := publicBaseURL(emulator); got != "http://localhost:4443" {
		t.Fatalf("override: want=%q got=%q", "http://localhost:4443", got)
	}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")
	if _, err := publicBaseURL(emulator); err == nil {
		t.Fatalf("relative override: want error")
	}
}

func TestGetPublicURL(t *testing.T) {
	buckets := map[BucketCategory]gcsBucket{
		BucketCategoryPhoto:  {name: "ghiblify-photos"},
		BucketCategoryResult: {name: "ghiblify-results", cdn: "cdn.ghiblify.xyz"},
	}
	cases := []struct {
		name     string
		bs       *bucketService
		category BucketCategory
		key      string
		want     string
	}{
		{
			name:     "gcs default",
			bs:       &bucketService{mode: ObjectStorageModeGCS, buckets: buckets},
			category: BucketCategoryPhoto,
			key:      "/0xabc/in.png",
			want:     "https://storage.googleapis.com/ghiblify-photos/0xabc/in.png",
		},
		{
			name:     "cdn domain",
			bs:       &bucketService{mode: ObjectStorageModeGCS, buckets: buckets},
			category: BucketCategoryResult,
			key:      "0xabc/out.png",
			want:     "https://cdn.ghiblify.xyz/0xabc/out.png",
		},
		{
			name:     "public base",
			bs:       &bucketService{mode: ObjectStorageModeGCS, buckets: buckets, publicBase: "http://localhost:4443"},
			category: BucketCategoryPhoto,
			key:      "0xabc/in.png",
			want:     "http://localhost:4443/ghiblify-photos/0xabc/in.png",
		},
		{
			name:     "emulator media endpoint",
			bs:       &bucketService{mode: ObjectStorageModeGCSEmulator, buckets: buckets, publicBase: "http://fake-gcs:4443"},
			category: BucketCategoryPhoto,
			key:      "0xabc/in.png",
			want:     "http://fake-gcs:4443/storage/v1/b/ghiblify-photos/o/0xabc%2Fin.png?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.bs.GetPublicURL(tc.category, tc.key); got != tc.want {
				t.Fatalf("GetPublicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"a/b.png":      "image/png",
		"a/b.JPG":      "image/jpeg",
		"a/b.webp?x=1": "image/webp",
		"a/b.bin":      "application/octet-stream",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
