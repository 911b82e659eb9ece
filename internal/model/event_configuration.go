package model

// EventTypeConfiguration is the per-tenant delivery switch for one external event type.
type EventTypeConfiguration struct {
	Type    string `db:"type" json:"type"`
	Enabled bool   `db:"enabled" json:"enabled"`
}

// EventConfigurationUpdate is the request body for bulk flag updates.
type EventConfigurationUpdate struct {
	ExternalEventConfigurations map[string]bool `json:"externalEventConfigurations" binding:"required"`
}

// EventConfigurationChanges lists the flags that actually changed.
type EventConfigurationChanges struct {
	Changes map[string]bool `json:"changes"`
}
