package model

import "time"

// PotID は4つの固定処理区のいずれかを示す識別子（"1"〜"4"）。
type PotID string

// 処理区の定義。灌水×施肥の組み合わせは実験設計で固定されている。
const (
	// PotRF はマセタ1: 通常灌水 + 施肥あり。
	PotRF PotID = "1"
	// PotSF はマセタ2: 乾燥処理 + 施肥あり。
	PotSF PotID = "2"
	// PotR はマセタ3: 通常灌水 + 施肥なし。
	PotR PotID = "3"
	// PotS はマセタ4: 乾燥処理 + 施肥なし。
	PotS PotID = "4"
)

// AllPotIDs は全処理区のID。Entryは必ずこの4区を1:1で持つ。
var AllPotIDs = []PotID{PotRF, PotSF, PotR, PotS}

// PotTreatments は処理区IDからラベル（RF/SF/R/S）へのマッピング。
var PotTreatments = map[PotID]string{
	PotRF: "RF",
	PotSF: "SF",
	PotR:  "R",
	PotS:  "S",
}

// PlantStatus は外観評価のカテゴリ値（スペイン語ラベルで保存される）。
type PlantStatus string

const (
	PlantStatusGerminating PlantStatus = "Germinación"
	PlantStatusLeaves      PlantStatus = "Primeras Hojas"
	PlantStatusGrowing     PlantStatus = "Crecimiento Vegetativo"
	PlantStatusWilting     PlantStatus = "Marchitez / Estrés"
	PlantStatusFlowering   PlantStatus = "Floración"
	PlantStatusFruiting    PlantStatus = "Fructificación"
	PlantStatusDead        PlantStatus = "Planta Muerta"
	PlantStatusNone        PlantStatus = "Sin Germinar"
)

// PotImages は1鉢あたり最大3枚の写真URL（正面・真上・側面）。
type PotImages struct {
	Front   string `json:"front,omitempty"`
	Top     string `json:"top,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// Count は設定済みの写真スロット数を返す。スコア計算に使用する。
func (p PotImages) Count() int {
	n := 0
	if p.Front != "" {
		n++
	}
	if p.Top != "" {
		n++
	}
	if p.Profile != "" {
		n++
	}
	return n
}

// PotMeasurement は1鉢1日分の計測値を表す。
// クライアントは数値を文字列として送受信するため、
// Weight/Height/PHは往復変換で値が保たれる精度で保持する。
type PotMeasurement struct {
	PotID        PotID
	Weight       float64
	Height       float64
	PH           float64
	VisualStatus PlantStatus
	Notes        string
	Images       PotImages
}

// Entry は1参加者の1日分の記録を表す。
// 必ず4つの処理区すべての計測値を持つ。
type Entry struct {
	ID           string
	ProfileID    string
	Date         time.Time
	DayNumber    int
	GeneralNotes string
	Pots         map[PotID]PotMeasurement
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PhotoCount は全鉢の設定済み写真スロット数の合計を返す。
func (e *Entry) PhotoCount() int {
	n := 0
	for _, pot := range e.Pots {
		n += pot.Images.Count()
	}
	return n
}
