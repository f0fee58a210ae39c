package storage

import (
	"strings"
	"testing"
)

// TestObjectKey はオブジェクトキー生成を検証する。
func TestObjectKey(t *testing.T) {
	key := ObjectKey("photos", "IMG_1234.JPG")

	if !strings.HasPrefix(key, "photos/") {
		t.Errorf("key = %s, expected photos/ prefix", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %s, expected lowercased .jpg extension", key)
	}
	if strings.Contains(key, "IMG_1234") {
		t.Errorf("key = %s, must not contain the original filename", key)
	}

	// 同名ファイルでもキーは衝突しない
	if key == ObjectKey("photos", "IMG_1234.JPG") {
		t.Error("expected unique keys for identical filenames")
	}

	// 拡張子なしでも安全に処理される
	if got := ObjectKey("avatars", "noext"); !strings.HasPrefix(got, "avatars/") {
		t.Errorf("key = %s, expected avatars/ prefix", got)
	}
}
