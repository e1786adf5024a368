package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Participant struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	TournamentID  uuid.UUID     `json:"tournament_id" db:"tournament_id"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	Email         string        `json:"-" db:"email"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

func (p *Participant) IsPaid() bool {
	return p.PaymentStatus == PaymentPaid
}
