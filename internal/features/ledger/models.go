// Package ledger управляет баллами пользователей: кошельки, история транзакций,
// каталог наград и их обмен.
// models.go описывает структуры кошелька, транзакций и наград.
package ledger

import "time"

// Wallet — баланс пользователя.
// Каждый пользователь имеет ровно одну запись в таблице wallets, созданную лениво.
type Wallet struct {
	UserID    int64     `json:"user_id"`    // Владелец
	Points    int64     `json:"points"`     // Текущий баланс, никогда не < 0
	Level     int       `json:"level"`      // Уровень, считается от points
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction — одна запись журнала баллов.
// Журнал только дописывается: каждое изменение кошелька даёт ровно одну строку.
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`               // earned_report, earned_collect, redeemed
	Amount      int64     `json:"amount"`             // Всегда положительная, знак задаёт Type
	Description string    `json:"description"`
	OfferID     *int64    `json:"offer_id,omitempty"` // Награда, за которую списали (nil для начислений)
	CreatedAt   time.Time `json:"created_at"`
	Date        string    `json:"date"`               // Календарная дата YYYY-MM-DD
}

// Типы транзакций
const (
	TxEarnedReport  = "earned_report"  // Награда за сообщение о мусоре
	TxEarnedCollect = "earned_collect" // Награда за подтверждённый сбор
	TxRedeemed      = "redeemed"       // Обмен баллов
)

// IsCredit — тип увеличивает баланс.
func IsCredit(txType string) bool {
	return txType == TxEarnedReport || txType == TxEarnedCollect
}

// RewardOffer — позиция каталога наград. Цена не зависит ни от чьего баланса.
type RewardOffer struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cost        int64     `json:"cost"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Виды записей в списке наград
const (
	ListingBalance = "balance" // Синтетическая запись «Your Points»
	ListingOffer   = "offer"   // Позиция каталога
)

// RewardListing — элемент ответа listAvailableRewards.
// Запись вида balance только показывает баланс, обменять её нельзя (для этого redeem-all).
type RewardListing struct {
	Kind        string `json:"kind"`
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"`
}

// OfferInput — данные для создания позиции каталога.
type OfferInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"`
	IsAvailable *bool  `json:"is_available"`
}

// OfferPatch — частичное обновление позиции каталога (nil — не трогать).
type OfferPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Cost        *int64  `json:"cost"`
	IsAvailable *bool   `json:"is_available"`
}

// LeaderboardEntry — строка таблицы лидеров.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Points int64  `json:"points"`
	Level  int    `json:"level"`
}

// Drift — расхождение баланса кошелька с суммой по журналу.
type Drift struct {
	UserID        int64 `json:"user_id"`
	WalletPoints  int64 `json:"wallet_points"`
	JournalPoints int64 `json:"journal_points"`
}
