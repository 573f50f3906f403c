// internal/event/gov.go
package event

import "github.com/google/uuid"

type GovernancePending struct {
	Current uuid.UUID
	Pending uuid.UUID
}

func (e *GovernancePending) EventType() EventType { return EventTypeGovernancePending }
func (e *GovernancePending) Account() *uuid.UUID  { return nil }

type GovernanceAccepted struct {
	Previous uuid.UUID
	Current  uuid.UUID
}

func (e *GovernanceAccepted) EventType() EventType { return EventTypeGovernanceAccepted }
func (e *GovernanceAccepted) Account() *uuid.UUID  { return nil }

// ConfigUpdated records a governance parameter change as a key/value
// pair, keeping the event log schema stable as parameters evolve.
type ConfigUpdated struct {
	Key   string
	Value string
}

func (e *ConfigUpdated) EventType() EventType { return EventTypeConfigUpdated }
func (e *ConfigUpdated) Account() *uuid.UUID  { return nil }

type PauseSet struct {
	Paused bool
}

func (e *PauseSet) EventType() EventType { return EventTypePauseSet }
func (e *PauseSet) Account() *uuid.UUID  { return nil }
