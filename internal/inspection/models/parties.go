package models

import (
	id "habitat/pkg/domain"
)

// Signatory is one row of a lease roster as supplied by the lease provider.
// Role is the raw provider spelling.
type Signatory struct {
	ProfileID id.ProfileID
	Role      string
}

// Profile is the subset of a person's profile the inspection flow reads.
type Profile struct {
	ID        id.ProfileID
	Nom       string
	Prenom    string
	Email     string
	Telephone string
	Role      string
}

// OwnerType distinguishes individual landlords from companies.
type OwnerType string

const (
	OwnerParticulier OwnerType = "particulier"
	OwnerSociete     OwnerType = "societe"
)

// Owner is the landlord behind a property.
type Owner struct {
	ProfileID          id.ProfileID
	Type               OwnerType
	RaisonSociale      string
	AdresseFacturation string
	Profile            *Profile
}

// Property is the rented unit.
type Property struct {
	ID         id.PropertyID
	OwnerID    id.ProfileID
	Adresse    string
	CodePostal string
	Ville      string
	Type       string
	Surface    float64
}

// Lease ties a property to its signatories.
type Lease struct {
	ID         id.LeaseID
	PropertyID id.PropertyID
	StartDate  string
	EndDate    string
	Roster     []Signatory
}
