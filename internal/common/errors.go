// Package common — errors.go определяет доменные ошибки,
// которые используются во всех модулях сервиса.
// Ошибки сгруппированы по таксономии (not-found, precondition, upstream):
// HTTP-обработчики через errors.Is выбирают статус, а текст ошибки
// отдают пользователю как есть.
package common

import "errors"

// Error — доменная ошибка с понятным пользователю текстом.
// Родители задают её место в таксономии (errors.Is(err, ErrNotFound) и т.п.).
type Error struct {
	msg     string
	parents []error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() []error { return e.parents }

func define(msg string, parents ...error) error {
	return &Error{msg: msg, parents: parents}
}

// Корни таксономии
var (
	// ErrNotFound — запрошенная сущность не существует
	ErrNotFound = errors.New("not found")
	// ErrPrecondition — операция невозможна в текущем состоянии
	ErrPrecondition = errors.New("precondition failed")
	// ErrInvalidInput — некорректные входные данные
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream — внешняя система недоступна или вернула мусор
	ErrUpstream = errors.New("upstream failure")
	// ErrUnauthorized — нет сессии или она невалидна
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden — сессия есть, но прав не хватает
	ErrForbidden = errors.New("forbidden")
)

// Not-found
var (
	ErrUserNotFound         = define("user not found", ErrNotFound)
	ErrReportNotFound       = define("report not found", ErrNotFound)
	ErrRewardNotFound       = define("reward not found", ErrNotFound)
	ErrNotificationNotFound = define("notification not found", ErrNotFound)
)

// Ошибки ledger (начисления, обмен баллов)
var (
	// ErrInvalidAmount — сумма должна быть положительной
	ErrInvalidAmount = define("amount must be positive", ErrInvalidInput)
	// ErrInvalidTransactionType — тип транзакции не подходит для операции
	ErrInvalidTransactionType = define("unsupported transaction type", ErrInvalidInput)

	// ErrRedemptionRejected — общая причина отказа в обмене
	ErrRedemptionRejected = define("insufficient points or invalid reward", ErrPrecondition)
	// ErrInsufficientPoints — баллов меньше, чем стоит награда
	ErrInsufficientPoints = define("insufficient points or invalid reward: balance is below the reward cost", ErrRedemptionRejected)
	// ErrRewardUnavailable — награда снята с витрины
	ErrRewardUnavailable = define("insufficient points or invalid reward: reward is not available", ErrRedemptionRejected)
	// ErrRewardCostMismatch — клиент видел другую цену
	ErrRewardCostMismatch = define("insufficient points or invalid reward: reward cost has changed", ErrRedemptionRejected)
	// ErrRedeemRewardNotFound — обмен на несуществующую награду: и not-found, и отказ в обмене
	ErrRedeemRewardNotFound = define("insufficient points or invalid reward: reward not found", ErrRewardNotFound, ErrRedemptionRejected)
	// ErrNothingToRedeem — на балансе 0
	ErrNothingToRedeem = define("nothing to redeem: balance is zero", ErrPrecondition)
)

// Ошибки жизненного цикла отчётов
var (
	ErrReportNotClaimable     = define("report is not open for collection", ErrPrecondition)
	ErrReportNotClaimed       = define("report has not been claimed for collection", ErrPrecondition)
	ErrReportAlreadyCollected = define("report has already been collected", ErrPrecondition)
	ErrNotAssignedCollector   = define("report is assigned to another collector", ErrForbidden)
)

// Ошибки авторизации и админки
var (
	// ErrWrongPassword — неверный пароль администратора
	ErrWrongPassword = define("wrong password", ErrUnauthorized)
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = define("too many attempts, try again in an hour", ErrPrecondition)
	// ErrSessionExpired — токен истёк или подпись не сошлась
	ErrSessionExpired = define("session expired, sign in again", ErrUnauthorized)
)

// Invalid возвращает ошибку некорректного ввода с пользовательским текстом.
func Invalid(msg string) error {
	return define(msg, ErrInvalidInput)
}

// Upstream оборачивает сбой внешней системы. Пользователь увидит только общий текст,
// причина остаётся в цепочке для логов.
func Upstream(msg string, cause error) error {
	if cause == nil {
		return define(msg, ErrUpstream)
	}
	return define(msg+": "+cause.Error(), ErrUpstream, cause)
}
