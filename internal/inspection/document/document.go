// Package document flattens an inspection graph into the canonical document
// every renderer consumes. Assemble is pure: same input, same output.
package document

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/email"
	pstrings "habitat/pkg/platform/strings"
)

// Input is the persisted graph behind one inspection. Lease, Property and
// Owner may be nil when the provider has nothing for them.
type Input struct {
	Inspection *models.Inspection
	Lease      *models.Lease
	Property   *models.Property
	Owner      *models.Owner
	Items      []*models.Item
	Media      []*models.Media
	Signers    []*models.SignerEntry
	Profiles   map[id.ProfileID]*models.Profile
}

// Document is the canonical, renderer-agnostic view of an inspection.
type Document struct {
	ID            string            `json:"id"`
	Reference     string            `json:"reference"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	ScheduledDate time.Time         `json:"scheduledDate"`
	GeneralNotes  string            `json:"generalNotes,omitempty"`
	Keys          []models.KeySet   `json:"keys"`
	IsComplete    bool              `json:"isComplete"`
	IsSigned      bool              `json:"isSigned"`
	SignedAt      *time.Time        `json:"signedAt,omitempty"`
	Property      *PropertyBlock    `json:"property,omitempty"`
	Landlord      *Landlord         `json:"landlord,omitempty"`
	Tenants       []Party           `json:"tenants"`
	Sections      []Section         `json:"sections"`
	GeneralPhotos []Photo           `json:"generalPhotos"`
	Signatures    []Signature       `json:"signatures"`
	URLs          map[string]string `json:"urls,omitempty"`
}

type PropertyBlock struct {
	Address    string  `json:"address"`
	PostalCode string  `json:"postalCode"`
	City       string  `json:"city"`
	Type       string  `json:"type,omitempty"`
	Surface    float64 `json:"surface,omitempty"`
	LeaseStart string  `json:"leaseStart,omitempty"`
	LeaseEnd   string  `json:"leaseEnd,omitempty"`
}

type Landlord struct {
	ProfileID      string `json:"profileId"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Telephone      string `json:"telephone,omitempty"`
	BillingAddress string `json:"billingAddress,omitempty"`
}

type Party struct {
	ProfileID string `json:"profileId"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Telephone string `json:"telephone,omitempty"`
}

type Section struct {
	RoomName string  `json:"roomName"`
	Items    []Item  `json:"items"`
	Photos   []Photo `json:"photos"`
}

type Item struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Condition string  `json:"condition"`
	Notes     string  `json:"notes,omitempty"`
	Photos    []Photo `json:"photos"`
}

// Photo references a stored image by path. Signed URLs live in Document.URLs,
// keyed by path, and are only filled by Presign.
type Photo struct {
	MediaID     string    `json:"mediaId"`
	StoragePath string    `json:"storagePath"`
	TakenAt     time.Time `json:"takenAt"`
}

type Signature struct {
	ProfileID string     `json:"profileId"`
	Role      string     `json:"role"`
	Name      string     `json:"name"`
	Signed    bool       `json:"signed"`
	SignedAt  *time.Time `json:"signedAt,omitempty"`
	ImagePath string     `json:"imagePath,omitempty"`
}

// Reference is the human-facing identifier printed on the document.
func Reference(inspectionID id.InspectionID) string {
	s := strings.ReplaceAll(inspectionID.String(), "-", "")
	return "EDL-" + strings.ToUpper(s[:8])
}

// Assemble maps in onto a Document. It never performs I/O.
func Assemble(in Input) *Document {
	insp := in.Inspection
	doc := &Document{
		ID:            insp.ID.String(),
		Reference:     Reference(insp.ID),
		Type:          string(insp.Type),
		Status:        string(insp.Status),
		ScheduledDate: insp.ScheduledDate,
		GeneralNotes:  insp.GeneralNotes,
		Keys:          append([]models.KeySet{}, insp.Keys...),
		IsComplete:    insp.Status.IsComplete(),
		IsSigned:      insp.Status == models.StatusSigned,
		SignedAt:      insp.SignedAt,
		Property:      propertyBlock(in.Property, in.Lease),
		Landlord:      landlord(in.Owner, in.Profiles),
		Tenants:       tenants(in.Lease, in.Profiles),
		GeneralPhotos: []Photo{},
		Signatures:    signatures(in.Signers, in.Profiles),
	}

	byItem, bySection, general := splitPhotos(in.Media)
	doc.GeneralPhotos = append(doc.GeneralPhotos, general...)
	doc.Sections = sections(in.Items, byItem, bySection)
	return doc
}

func propertyBlock(p *models.Property, lease *models.Lease) *PropertyBlock {
	if p == nil {
		return nil
	}
	b := &PropertyBlock{
		Address:    p.Adresse,
		PostalCode: p.CodePostal,
		City:       p.Ville,
		Type:       p.Type,
		Surface:    p.Surface,
	}
	if lease != nil {
		b.LeaseStart = lease.StartDate
		b.LeaseEnd = lease.EndDate
	}
	return b
}

func landlord(owner *models.Owner, profiles map[id.ProfileID]*models.Profile) *Landlord {
	if owner == nil {
		return nil
	}
	profile := owner.Profile
	if profile == nil {
		profile = profiles[owner.ProfileID]
	}
	l := &Landlord{
		ProfileID:      owner.ProfileID.String(),
		Type:           string(owner.Type),
		BillingAddress: owner.AdresseFacturation,
	}
	if profile != nil {
		l.Email = profile.Email
		l.Telephone = profile.Telephone
	}
	if owner.Type == models.OwnerSociete && strings.TrimSpace(owner.RaisonSociale) != "" {
		l.Name = strings.TrimSpace(owner.RaisonSociale)
	} else {
		l.Name = displayName(profile)
	}
	return l
}

// tenants keeps the tenant-like roster rows in roster order, once per profile.
func tenants(lease *models.Lease, profiles map[id.ProfileID]*models.Profile) []Party {
	out := []Party{}
	if lease == nil {
		return out
	}
	seen := make(map[id.ProfileID]struct{}, len(lease.Roster))
	for _, sig := range lease.Roster {
		if !models.IsTenantAlias(sig.Role) {
			continue
		}
		if _, dup := seen[sig.ProfileID]; dup {
			continue
		}
		seen[sig.ProfileID] = struct{}{}
		p := profiles[sig.ProfileID]
		party := Party{
			ProfileID: sig.ProfileID.String(),
			Role:      string(models.RoleTenant),
			Name:      displayName(p),
		}
		if p != nil {
			party.Email = p.Email
			party.Telephone = p.Telephone
		}
		out = append(out, party)
	}
	return out
}

// signatures lists owners before tenants, then by profile id.
func signatures(entries []*models.SignerEntry, profiles map[id.ProfileID]*models.Profile) []Signature {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b *models.SignerEntry) int {
		if c := cmp.Compare(roleRank(a.SignerRole), roleRank(b.SignerRole)); c != 0 {
			return c
		}
		return cmp.Compare(a.SignerProfileID.String(), b.SignerProfileID.String())
	})
	out := make([]Signature, 0, len(sorted))
	for _, e := range sorted {
		sig := Signature{
			ProfileID: e.SignerProfileID.String(),
			Role:      string(e.SignerRole),
			Name:      displayName(profiles[e.SignerProfileID]),
			Signed:    e.IsSigned(),
		}
		if sig.Signed {
			sig.SignedAt = e.SignedAt
			sig.ImagePath = e.SignatureImagePath
		}
		out = append(out, sig)
	}
	return out
}

func roleRank(r models.SignerRole) int {
	if r == models.RoleOwner {
		return 0
	}
	return 1
}

// splitPhotos buckets photo media: attached to an item, tagged with a
// section, or general.
func splitPhotos(media []*models.Media) (map[id.ItemID][]Photo, map[string][]Photo, []Photo) {
	sorted := slices.Clone(media)
	slices.SortStableFunc(sorted, func(a, b *models.Media) int {
		if c := a.TakenAt.Compare(b.TakenAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	byItem := make(map[id.ItemID][]Photo)
	bySection := make(map[string][]Photo)
	var general []Photo
	for _, m := range sorted {
		if !m.IsPhoto() {
			continue
		}
		photo := Photo{MediaID: m.ID.String(), StoragePath: m.StoragePath, TakenAt: m.TakenAt}
		switch {
		case m.ItemID != nil:
			byItem[*m.ItemID] = append(byItem[*m.ItemID], photo)
		case m.Section != nil && strings.TrimSpace(*m.Section) != "":
			key := strings.TrimSpace(*m.Section)
			bySection[key] = append(bySection[key], photo)
		default:
			general = append(general, photo)
		}
	}
	return byItem, bySection, general
}

func sections(items []*models.Item, byItem map[id.ItemID][]Photo, bySection map[string][]Photo) []Section {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b *models.Item) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	rooms, grouped := pstrings.GroupOrdered(sorted, func(it *models.Item) string { return it.RoomName })
	out := make([]Section, 0, len(rooms))
	for _, room := range rooms {
		section := Section{
			RoomName: room,
			Items:    make([]Item, 0, len(grouped[room])),
			Photos:   append([]Photo{}, bySection[room]...),
		}
		for _, it := range grouped[room] {
			section.Items = append(section.Items, Item{
				ID:        it.ID.String(),
				Name:      it.ItemName,
				Condition: it.Condition,
				Notes:     it.Notes,
				Photos:    append([]Photo{}, byItem[it.ID]...),
			})
		}
		out = append(out, section)
	}
	return out
}

// displayName prefers "Prenom Nom" and falls back to a name derived from the
// email address.
func displayName(p *models.Profile) string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(p.Prenom) + " " + strings.TrimSpace(p.Nom))
	if name != "" {
		return name
	}
	return email.DisplayName(p.Email)
}
