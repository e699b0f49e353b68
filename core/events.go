package core

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event topics
const (
	TopicRegistered = "tessera.registered"
	TopicLogin      = "tessera.login"
	TopicLogout     = "tessera.logout"
	TopicTransfer   = "tessera.transfer"
)

// Event is a domain notification published after a successful flow
type Event interface {
	Topic() string
	// Key identifies the entity the event is about; used as message metadata.
	Key() string
}

// RegisteredEvent is published after a principal registers
type RegisteredEvent struct {
	PrincipalID  int64     `json:"principal_id"`
	PrincipalKey string    `json:"key"`
	At           time.Time `json:"at"`
}

func (e RegisteredEvent) Topic() string { return TopicRegistered }
func (e RegisteredEvent) Key() string   { return strconv.FormatInt(e.PrincipalID, 10) }

// LoginEvent is published after a successful login
type LoginEvent struct {
	PrincipalID int64     `json:"principal_id"`
	TokenID     string    `json:"token_id"`
	At          time.Time `json:"at"`
}

func (e LoginEvent) Topic() string { return TopicLogin }
func (e LoginEvent) Key() string   { return e.TokenID }

// LogoutEvent is published after a refresh token is revoked
type LogoutEvent struct {
	PrincipalID int64     `json:"principal_id,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`
	At          time.Time `json:"at"`
}

func (e LogoutEvent) Topic() string { return TopicLogout }
func (e LogoutEvent) Key() string   { return e.TokenID }

// TransferEvent is published after a balance transfer commits
type TransferEvent struct {
	FromID int64           `json:"from_id"`
	ToID   int64           `json:"to_id"`
	Amount decimal.Decimal `json:"amount"`
	At     time.Time       `json:"at"`
}

func (e TransferEvent) Topic() string { return TopicTransfer }
func (e TransferEvent) Key() string   { return strconv.FormatInt(e.FromID, 10) }
