package model

import (
	"strings"
	"time"
)

// KitStatus はキットコードの利用状況を表す。
type KitStatus string

const (
	// KitStatusAvailable は未使用のキットコード。
	KitStatusAvailable KitStatus = "available"
	// KitStatusClaimed は参加者に紐付け済みのキットコード。
	KitStatusClaimed KitStatus = "claimed"
)

// kitCodePrefix は配布キットコードの固定プレフィックス。
const kitCodePrefix = "CVPL-"

// Kit は事前に発行された参加キットを表す。
// 1つのコードは最大1アカウントにのみ紐付く。
type Kit struct {
	ID        int64
	Code      string
	Status    KitStatus
	ClaimedBy string
	ClaimedAt *time.Time
	BatchID   string
	KitNumber string
	Variety   string
	CreatedAt time.Time
}

// NormalizeKitCode はキットコードを正規化する（前後空白除去、大文字化）。
// QRスキャンや手入力の揺れを吸収するため、照合前に必ず適用する。
func NormalizeKitCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidKitCodeFormat は正規化済みコードが配布形式（CVPL-XXX）に
// 一致するかを検証する。照合はネットワーク呼び出しの前に行う。
func IsValidKitCodeFormat(code string) bool {
	return len(code) >= 6 && strings.HasPrefix(code, kitCodePrefix)
}
