package services

import "errors"

var (
	ErrSlotFull          = errors.New("class is full or no longer available")
	ErrInvalidToken      = errors.New("reservation has expired or was already used")
	ErrInvalidTransition = errors.New("illegal booking state transition")
	ErrAmountMismatch    = errors.New("reported amount does not match booking amount")
	ErrPriceMismatch     = errors.New("target class price does not match booking amount")
	ErrClassStarted      = errors.New("target class has already started")
)
