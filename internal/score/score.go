// Package score は参加者スコアの計算ロジックを提供する。
package score

import "github.com/phytolearning/cultivadatos/internal/model"

// 得点の内訳。記録1件ごとの基礎点、写真スロット1枠ごとの加点、
// 継続ボーナス（5件超で+200、10件超でさらに+300、合計+500）。
const (
	pointsPerEntry      = 100
	pointsPerPhotoSlot  = 50
	streakBonusOverFive = 200
	streakBonusOverTen  = 300
	streakThresholdLow  = 5
	streakThresholdHigh = 10
)

// Compute は記録一覧から参加者スコアを算出する。
// 入力のみに依存する純粋関数であり、記録の順序には影響されない。
// 記録ゼロ件のスコアは0。
func Compute(entries []*model.Entry) int {
	if len(entries) == 0 {
		return 0
	}

	total := len(entries) * pointsPerEntry
	for _, entry := range entries {
		total += entry.PhotoCount() * pointsPerPhotoSlot
	}

	if len(entries) > streakThresholdLow {
		total += streakBonusOverFive
	}
	if len(entries) > streakThresholdHigh {
		total += streakBonusOverTen
	}

	return total
}
