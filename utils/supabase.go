package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/vinakademin/vinakademin-backend/config"
)

// ErrStorageDisabled is returned when Supabase credentials are missing.
var ErrStorageDisabled = errors.New("supabase storage is not configured")

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

func storageClient() (*storage.Client, config.SupabaseConfig, error) {
	cfg := config.AppConfig.Supabase
	if cfg.URL == "" || cfg.Key == "" {
		return nil, cfg, ErrStorageDisabled
	}
	return storage.NewClient(cfg.URL+"/storage/v1", cfg.Key, nil), cfg, nil
}

// UploadImageToSupabase uploads a course thumbnail, blog cover or wine label.
// Path: <bucket>/<folder>/<fileID>.<ext>
func UploadImageToSupabase(fileHeader *multipart.FileHeader, folder, fileID string) (string, error) {
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}

	client, cfg, err := storageClient()
	if err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return "", err
	}

	objectPath := fmt.Sprintf("%s/%s%s", folder, fileID, strings.ToLower(filepath.Ext(fileHeader.Filename)))
	upsert := true
	_, err = client.UploadFile(cfg.Bucket, objectPath, &buf, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}

	return client.GetPublicUrl(cfg.Bucket, objectPath).SignedURL, nil
}

// DeleteFileFromSupabase removes an object given its public URL. URLs that
// do not point at the configured bucket are ignored.
func DeleteFileFromSupabase(publicURL string) error {
	if publicURL == "" {
		return nil
	}
	client, cfg, err := storageClient()
	if err != nil {
		return err
	}

	objectPath, ok := ObjectPathFromURL(publicURL, cfg.Bucket)
	if !ok {
		return nil
	}
	if _, err := client.RemoveFile(cfg.Bucket, []string{objectPath}); err != nil {
		return fmt.Errorf("remove %s: %w", objectPath, err)
	}
	return nil
}

// ObjectPathFromURL extracts "<folder>/<file>" from a public storage URL.
func ObjectPathFromURL(publicURL, bucket string) (string, bool) {
	marker := "/storage/v1/object/public/" + bucket + "/"
	idx := strings.Index(publicURL, marker)
	if idx == -1 {
		return "", false
	}
	path := publicURL[idx+len(marker):]
	if q := strings.IndexByte(path, '?'); q != -1 {
		path = path[:q]
	}
	return path, path != ""
}
