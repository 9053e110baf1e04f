package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// CloudUploader はレポートファイルのクラウドストレージへのアップロードを行う。
// アップロードはベストエフォートで、失敗してもローカルファイルは有効なまま残る。
type CloudUploader struct {
	uploadURL  string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCloudUploader はCloudUploaderを生成する。
func NewCloudUploader(uploadURL, apiKey string, logger *slog.Logger) *CloudUploader {
	return &CloudUploader{
		uploadURL:  uploadURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Configured はアップロード先とAPIキーが設定されているかを返す。
// 未設定の場合、uploadフラグは機能制限付きで無視される。
func (u *CloudUploader) Configured() bool {
	return u.uploadURL != "" && u.apiKey != ""
}

// UploadAll は複数ファイルを順にアップロードし、成功件数を返す。
// 個別の失敗は警告ログに落とし、処理を継続する。
func (u *CloudUploader) UploadAll(ctx context.Context, paths []string) int {
	uploaded := 0
	for _, path := range paths {
		if err := u.Upload(ctx, path); err != nil {
			u.logger.Warn("クラウドアップロードに失敗しました。ローカルファイルは保持されます",
				"path", path, "error", err)
			continue
		}
		uploaded++
	}
	u.logger.Info("クラウドアップロードが完了しました",
		"uploaded", uploaded, "total", len(paths))
	return uploaded
}

// Upload は1ファイルをmultipart/form-dataでアップロードする。
func (u *CloudUploader) Upload(ctx context.Context, path string) error {
	if !u.Configured() {
		return fmt.Errorf("クラウドアップロードが設定されていません")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("アップロード対象の読み込みに失敗しました: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("ファイル内容の書き込みに失敗しました: %w", err)
	}
	if err := mw.WriteField("content_type", contentTypeFor(path)); err != nil {
		return fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("マルチパートの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &body)
	if err != nil {
		return fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Upload-Timestamp", time.Now().Format(time.RFC3339))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return model.NewExternalServiceError("cloud", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.NewExternalServiceError("cloud",
			fmt.Errorf("status=%d", resp.StatusCode))
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
