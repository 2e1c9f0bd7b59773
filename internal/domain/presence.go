package domain

import (
	"time"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type PresenceRecord struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"onlineStatus"`
	LastSeen time.Time `json:"lastSeen"`
}
