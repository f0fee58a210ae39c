package score

import (
	"fmt"
	"testing"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// makeEntries は指定件数の記録を生成する。photosPerEntryは1件あたりの写真スロット数（0〜3）。
func makeEntries(count, photosPerEntry int) []*model.Entry {
	entries := make([]*model.Entry, 0, count)
	for i := 0; i < count; i++ {
		images := model.PotImages{}
		if photosPerEntry >= 1 {
			images.Front = fmt.Sprintf("https://example.com/photos/%d/front.jpg", i)
		}
		if photosPerEntry >= 2 {
			images.Top = fmt.Sprintf("https://example.com/photos/%d/top.jpg", i)
		}
		if photosPerEntry >= 3 {
			images.Profile = fmt.Sprintf("https://example.com/photos/%d/profile.jpg", i)
		}
		entries = append(entries, &model.Entry{
			ID:        fmt.Sprintf("entry-%d", i),
			ProfileID: "profile-1",
			DayNumber: i + 1,
			Pots: map[model.PotID]model.PotMeasurement{
				model.PotRF: {PotID: model.PotRF, Images: images},
				model.PotSF: {PotID: model.PotSF},
				model.PotR:  {PotID: model.PotR},
				model.PotS:  {PotID: model.PotS},
			},
		})
	}
	return entries
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name           string
		entryCount     int
		photosPerEntry int
		expected       int
	}{
		{
			name:       "記録ゼロ件はスコア0",
			entryCount: 0,
			expected:   0,
		},
		{
			name:       "1件・写真なし",
			entryCount: 1,
			expected:   100,
		},
		{
			name:           "3件・各1枚",
			entryCount:     3,
			photosPerEntry: 1,
			expected:       3*100 + 3*50,
		},
		{
			name:       "5件ちょうどはボーナスなし",
			entryCount: 5,
			expected:   500,
		},
		{
			name:           "6件・各1枚で継続ボーナス+200",
			entryCount:     6,
			photosPerEntry: 1,
			expected:       6*100 + 6*50 + 200,
		},
		{
			name:       "10件ちょうどは+200のみ",
			entryCount: 10,
			expected:   10*100 + 200,
		},
		{
			name:       "11件でボーナス合計+500",
			entryCount: 11,
			expected:   11*100 + 200 + 300,
		},
		{
			name:           "12件・各3枚",
			entryCount:     12,
			photosPerEntry: 3,
			expected:       12*100 + 12*3*50 + 200 + 300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(makeEntries(tt.entryCount, tt.photosPerEntry))
			if got != tt.expected {
				t.Errorf("Compute() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

// スコアは記録の追加に対して単調に増加する。
func TestComputeMonotonic(t *testing.T) {
	prev := 0
	for count := 1; count <= 15; count++ {
		got := Compute(makeEntries(count, 2))
		if got <= prev {
			t.Errorf("Compute() with %d entries = %d, expected greater than %d", count, got, prev)
		}
		prev = got
	}
}

// スコアは記録の順序に依存しない。
func TestComputeOrderIndependent(t *testing.T) {
	entries := makeEntries(7, 1)
	forward := Compute(entries)

	reversed := make([]*model.Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	backward := Compute(reversed)

	if forward != backward {
		t.Errorf("Compute() order dependent: forward=%d backward=%d", forward, backward)
	}
}
