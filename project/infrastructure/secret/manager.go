package secret

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Manager は Secret Manager を通じてシークレットを取得するクライアントです
// config.SecretGetter を満たします
type Manager struct {
	client    *secretmanager.Client
	projectID string
}

// NewManager は Secret Manager のマネージャーを初期化します
func NewManager(ctx context.Context, projectID string) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secret manager: クライアント初期化失敗: %w", err)
	}

	return &Manager{
		client:    client,
		projectID: projectID,
	}, nil
}

// GetSecret は指定されたシークレット名から最新版のシークレット値を取得します
func (m *Manager) GetSecret(ctx context.Context, secretName string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: ResourceName(m.projectID, secretName),
	}

	// シークレットにアクセス
	result, err := m.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("secret manager: シークレット取得失敗 (name=%s): %w", secretName, err)
	}

	// ペイロードからシークレット値を抽出（末尾の改行は除去）
	secret := strings.TrimRight(string(result.Payload.Data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret manager: シークレット値が空です (name=%s)", secretName)
	}

	return secret, nil
}

// ResourceName はシークレット名をバージョン付きのリソース名に展開します
// 既に "projects/" から始まる完全なリソース名はそのまま使い、バージョン省略時は latest を補います
func ResourceName(projectID, secretName string) string {
	if !strings.HasPrefix(secretName, "projects/") {
		return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretName)
	}
	if !strings.Contains(secretName, "/versions/") {
		return secretName + "/versions/latest"
	}
	return secretName
}

// Close は Secret Manager クライアントを閉じます
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
