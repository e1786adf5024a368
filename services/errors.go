package services

import (
	"errors"
	"fmt"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	ErrTournamentNotFound  = fmt.Errorf("%w: tournament", ErrNotFound)
	ErrMatchNotFound       = fmt.Errorf("%w: match", ErrNotFound)
	ErrBracketNotGenerated = fmt.Errorf("%w: bracket not generated yet", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("%w: participant", ErrNotFound)

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed         = errors.New("validation failed")
	ErrAlreadyGenerated         = errors.New("bracket has already been generated for this tournament")
	ErrInsufficientParticipants = errors.New("at least 2 paid participants are required to generate a bracket")
	ErrNotAParticipant          = errors.New("caller is not a player of this match")
	ErrInvalidTransition        = errors.New("operation not allowed in the current match status")
	ErrNotDisputed              = fmt.Errorf("%w: match is not disputed", ErrInvalidTransition)
	ErrResultTie                = errors.New("submitted scores are tied, a winner must be chosen explicitly")
	ErrWinnerNotInMatch         = errors.New("winner must be one of the match players")
	ErrUnsupportedAttachment    = errors.New("unsupported attachment content type")

	// Конкурентные изменения
	ErrConflict = errors.New("match was changed concurrently, retry the request")

	// Авторизация
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")

	// Внешние сервисы (уведомления, хранилище)
	ErrExternalService = errors.New("external service failure")
)
