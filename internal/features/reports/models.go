// Package reports ведёт жизненный цикл сообщений о мусоре:
// создание, захват сборщиком, сбор и подтверждение фото моделью.
// models.go описывает отчёты, записи о сборе и переходы статусов.
package reports

import (
	"time"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/verification"
)

// Статусы отчёта. Переходы: pending → in_progress → completed | verified.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusVerified   = "verified"
)

// CollectedStatus — статус записи collected_wastes.
const CollectedStatus = "collected"

// Report — сообщение о мусоре, оно же задача для сборщиков.
type Report struct {
	ID                 int64                `json:"id"`
	UserID             int64                `json:"user_id"`
	CollectorID        *int64               `json:"collector_id,omitempty"`
	Location           string               `json:"location"`
	WasteType          string               `json:"waste_type"`
	Amount             string               `json:"amount"` // Свободный текст: "5 kg", "2 мешка"
	Status             string               `json:"status"`
	ImageURL           string               `json:"image_url,omitempty"`
	VerificationResult *verification.Result `json:"verification_result,omitempty"`
	ClaimedAt          *time.Time           `json:"claimed_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// CollectedWaste — подтверждённый сбор. На один отчёт не больше одной записи.
type CollectedWaste struct {
	ID                 int64                `json:"id"`
	ReportID           int64                `json:"report_id"`
	CollectorID        int64                `json:"collector_id"`
	CollectedAt        time.Time            `json:"collected_at"`
	Status             string               `json:"status"`
	VerificationResult *verification.Result `json:"verification_result,omitempty"`
}

// NewReport — тело POST /api/reports. Image — data URI, необязательно.
type NewReport struct {
	Location  string `json:"location"`
	WasteType string `json:"waste_type"`
	Amount    string `json:"amount"`
	Image     string `json:"image"`
}

// CreateParams — проверенные данные для вставки отчёта.
type CreateParams struct {
	UserID    int64
	Location  string
	WasteType string
	Amount    string
	ImageURL  string
}

// TaskPage — страница списка задач.
type TaskPage struct {
	Tasks     []*Report `json:"tasks"`
	Total     int       `json:"total"`
	Page      int       `json:"page"`
	PerPage   int       `json:"per_page"`
	PageCount int       `json:"page_count"`
}

// CheckCollectable проверяет, что collectorID может сдать отчёт на сбор:
// отчёт ещё не собран, находится в работе и закреплён именно за ним.
func CheckCollectable(r *Report, collectorID int64) error {
	switch r.Status {
	case StatusVerified, StatusCompleted:
		return common.ErrReportAlreadyCollected
	case StatusInProgress:
	default:
		return common.ErrReportNotClaimed
	}
	if r.CollectorID == nil || *r.CollectorID != collectorID {
		return common.ErrNotAssignedCollector
	}
	return nil
}
