package httpsec

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxSkew はリクエストタイムスタンプとして許容するずれ
const MaxSkew = 5 * time.Minute

// ErrBadSignature は署名・タイムスタンプ検証失敗のエラー
var ErrBadSignature = errors.New("httpsec: 署名検証失敗")

// VerifySlackSignature は Slack からのリクエストの署名を現在時刻で検証します
func VerifySlackSignature(signingSecret, signature, timestamp, body string) error {
	return VerifySlackSignatureAt(signingSecret, signature, timestamp, body, time.Now())
}

// VerifySlackSignatureAt は now を基準に X-Slack-Signature と X-Slack-Request-Timestamp を検証します
func VerifySlackSignatureAt(signingSecret, signature, timestamp, body string, now time.Time) error {
	if signingSecret == "" {
		return fmt.Errorf("%w: signing secret が未設定です", ErrBadSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: タイムスタンプ形式が不正です (ts=%q)", ErrBadSignature, timestamp)
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew {
		return fmt.Errorf("%w: タイムスタンプが古すぎます (ts=%d)", ErrBadSignature, ts)
	}

	// 定時間比較
	expected := ComputeSlackSignature(signingSecret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: 署名が一致しません", ErrBadSignature)
	}

	return nil
}

// ComputeSlackSignature は "v0=" + HMAC-SHA256("v0:<timestamp>:<body>") を返します
func ComputeSlackSignature(signingSecret, timestamp, body string) string {
	h := hmac.New(sha256.New, []byte(signingSecret))
	h.Write([]byte("v0:" + timestamp + ":" + body))
	return fmt.Sprintf("v0=%x", h.Sum(nil))
}
