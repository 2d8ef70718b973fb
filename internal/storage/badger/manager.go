package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/common"
	"github.com/ternarybob/fabrica/internal/interfaces"
)

// Manager aggregates the badger-backed stores behind one connection.
type Manager struct {
	db            *BadgerDB
	projects      interfaces.ProjectStorage
	artifacts     interfaces.ArtifactStorage
	jobs          interfaces.JobStorage
	references    interfaces.ReferenceStorage
	memberships   interfaces.MembershipStorage
	trends        interfaces.TrendStorage
	notifications interfaces.NotificationStorage
}

// NewManager opens the database and wires every store.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:            db,
		projects:      NewProjectStorage(db, logger),
		artifacts:     NewArtifactStorage(db, logger),
		jobs:          NewJobStorage(db, logger),
		references:    NewReferenceStorage(db, logger),
		memberships:   NewMembershipStorage(db, logger),
		trends:        NewTrendStorage(db, logger),
		notifications: NewNotificationStorage(db, logger),
	}, nil
}

func (m *Manager) Projects() interfaces.ProjectStorage           { return m.projects }
func (m *Manager) Artifacts() interfaces.ArtifactStorage         { return m.artifacts }
func (m *Manager) Jobs() interfaces.JobStorage                   { return m.jobs }
func (m *Manager) References() interfaces.ReferenceStorage       { return m.references }
func (m *Manager) Memberships() interfaces.MembershipStorage     { return m.memberships }
func (m *Manager) Trends() interfaces.TrendStorage               { return m.trends }
func (m *Manager) Notifications() interfaces.NotificationStorage { return m.notifications }

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
