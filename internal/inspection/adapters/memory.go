package adapters

import (
	"context"
	"sync"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
)

// Directory is an in-memory party directory for local runs and tests.
type Directory struct {
	mu         sync.RWMutex
	profiles   map[id.ProfileID]models.Profile
	owners     map[id.ProfileID]models.Owner
	properties map[id.PropertyID]models.Property
	leases     map[id.LeaseID]models.Lease
}

func NewDirectory() *Directory {
	return &Directory{
		profiles:   make(map[id.ProfileID]models.Profile),
		owners:     make(map[id.ProfileID]models.Owner),
		properties: make(map[id.PropertyID]models.Property),
		leases:     make(map[id.LeaseID]models.Lease),
	}
}

func (d *Directory) PutProfile(p models.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

func (d *Directory) PutOwner(o models.Owner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o.Profile = nil
	d.owners[o.ProfileID] = o
}

func (d *Directory) PutProperty(p models.Property) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties[p.ID] = p
}

func (d *Directory) PutLease(l models.Lease) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l.Roster = append([]models.Signatory(nil), l.Roster...)
	d.leases[l.ID] = l
}

func (d *Directory) Signatories(_ context.Context, leaseID id.LeaseID) ([]models.Signatory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.leases[leaseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]models.Signatory(nil), l.Roster...), nil
}

func (d *Directory) GetProfile(_ context.Context, profileID id.ProfileID) (*models.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[profileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (d *Directory) GetLease(_ context.Context, leaseID id.LeaseID) (*models.Lease, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.leases[leaseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	l.Roster = append([]models.Signatory(nil), l.Roster...)
	return &l, nil
}

func (d *Directory) GetProperty(_ context.Context, propertyID id.PropertyID) (*models.Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.properties[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// GetOwner attaches the owner's profile when the directory has it.
func (d *Directory) GetOwner(_ context.Context, ownerProfileID id.ProfileID) (*models.Owner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.owners[ownerProfileID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if p, ok := d.profiles[ownerProfileID]; ok {
		o.Profile = &p
	}
	return &o, nil
}
