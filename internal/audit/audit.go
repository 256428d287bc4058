// Package audit records every mutation as an append-only fact and streams
// entries to connected live-feed clients. Recording is best-effort: a failed
// append is logged and swallowed, never surfaced to the triggering operation.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"catalogapi/internal/domain"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
)

// SessionActions are session-lifecycle entries. They are recorded like any
// other action but excluded from audit listings.
var SessionActions = []string{string(ActionLogin), string(ActionLogout)}

type Recorder struct {
	db  *gorm.DB
	hub *Hub
}

// NewRecorder returns a recorder writing to audit_logs. hub may be nil when
// no live feed is wired (tests, seed command).
func NewRecorder(db *gorm.DB, hub *Hub) *Recorder {
	return &Recorder{db: db, hub: hub}
}

// Record appends one audit entry. Failures are logged, never returned: the
// caller's operation has already succeeded and must stay successful.
func (r *Recorder) Record(action Action, table string, recordID, actorID int64, actorName string, details map[string]any) {
	entry := domain.AuditLog{
		Action:    string(action),
		Entity:    table,
		RecordID:  recordID,
		UserID:    actorID,
		Username:  actorName,
		CreatedAt: time.Now().UTC(),
	}

	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			log.Printf("audit: failed to encode details for %s %s/%d: %v", action, table, recordID, err)
		} else {
			entry.Details = string(raw)
		}
	}

	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("audit: failed to record %s %s/%d: %v", action, table, recordID, err)
		return
	}

	if r.hub != nil {
		r.hub.Broadcast(entry)
	}
}
