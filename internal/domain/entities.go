package domain

import "time"

// EventCategory классифицирует интервал времени в дне.
type EventCategory string

const (
	// CategoryProductive продуктивное время.
	CategoryProductive EventCategory = "productive"
	// CategoryNeutral нейтральное время.
	CategoryNeutral EventCategory = "neutral"
	// CategoryWaste потраченное впустую время.
	CategoryWaste EventCategory = "waste"
	// CategorySleep сон.
	CategorySleep EventCategory = "sleep"
	// CategoryUntracked неразмеченное время.
	CategoryUntracked EventCategory = "untracked"
)

// KnownCategory сообщает, входит ли категория в допустимый набор.
func KnownCategory(c EventCategory) bool {
	switch c {
	case CategoryProductive, CategoryNeutral, CategoryWaste, CategorySleep, CategoryUntracked:
		return true
	}
	return false
}

// Day хранит один календарный день владельца: историю расшифровок,
// нарратив и ссылки на метрики и события.
type Day struct {
	ID          int64
	OwnerID     int64
	Date        string // YYYY-MM-DD
	Transcripts []string
	Summary     string
	Suggestions []string
	Metrics     Metrics
	Events      []Event
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Metrics содержит агрегаты дня, один к одному с Day.
type Metrics struct {
	ID              int64
	DayID           int64
	ProductiveHours float64
	NeutralHours    float64
	WastedHours     float64
	SleepHours      float64
	FocusBlocks     int
	ContextSwitches int
}

// Event описывает размеченный интервал внутри дня. Времена хранятся в
// настенном формате "HH:MM"; интервал через полночь никогда не
// сохраняется одной записью.
type Event struct {
	ID        int64
	DayID     int64
	Label     string
	Category  EventCategory
	StartTime string
	EndTime   string
	Notes     string
}

// Goal представляет цель владельца с ручным порядком сортировки.
type Goal struct {
	ID        int64
	OwnerID   int64
	Text      string
	Done      bool
	SortOrder int
	CreatedAt time.Time
}

// CandidateEvent событие из ответа суммаризатора до нормализации.
type CandidateEvent struct {
	Label     string        `json:"label"`
	Category  EventCategory `json:"category"`
	StartTime string        `json:"startTime"`
	EndTime   string        `json:"endTime"`
	Notes     string        `json:"notes,omitempty"`
}

// CandidateMetrics метрики из ответа суммаризатора. Значения не
// считаются согласованными, пока их не проверит нормализатор.
type CandidateMetrics struct {
	ProductiveHours float64 `json:"productiveHours"`
	NeutralHours    float64 `json:"neutralHours"`
	WastedHours     float64 `json:"wastedHours"`
	SleepHours      float64 `json:"sleepHours"`
	FocusBlocks     int     `json:"focusBlocks"`
	ContextSwitches int     `json:"contextSwitches"`
}

// CandidateDay структурированный день, предложенный суммаризатором.
type CandidateDay struct {
	Date        string           `json:"date"`
	Events      []CandidateEvent `json:"events"`
	Summary     string           `json:"summary"`
	Metrics     CandidateMetrics `json:"metrics"`
	Suggestions []string         `json:"suggestions"`
}

// SleepSegment отрезок сна в минутах от полуночи той даты, к которой он
// отнесён. End для переноса на предыдущий день всегда равен 1440.
type SleepSegment struct {
	StartMin int
	EndMin   int
}

// Minutes возвращает длительность отрезка.
func (s SleepSegment) Minutes() int {
	return s.EndMin - s.StartMin
}

// DayUpdate полное новое состояние дня D, подготовленное к записи.
type DayUpdate struct {
	Date        string
	Transcripts []string
	Summary     string
	Suggestions []string
	Metrics     Metrics
	Events      []Event
}

// PrevDayPatch корректировка предыдущего дня после переноса сна через
// полночь. CarryMinutes — итоговые минуты переноса для целевой даты,
// не приращение: репозиторий сам вычисляет дельту относительно уже
// сохранённых минут переноса.
type PrevDayPatch struct {
	Date         string // D-1
	TargetDate   string // D, закодирована в метке события
	Label        string
	CarryMinutes int
	StartTime    string // начало самого раннего отрезка, "HH:MM"
	EndTime      string // всегда "23:59", 24:00 не сохраняется
}
