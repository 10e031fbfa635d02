package persistence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-multierror"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

const (
	tableTechnicians  = "technicians"
	tableRestrictions = "restrictions"
	tableTagItems     = "tag_items"
	tableDevices      = "devices"
	tableVerification = "verification_logs"
	tableAudit        = "audit_events"

	indexID            = "id"
	indexReseller      = "reseller"
	indexTechnician    = "technician"
	indexTag           = "tag"
	indexSubjectDevice = "subject_device"
)

type memTechnician struct {
	ID int64
	// ResellerID is nil for technicians without a reseller; those stay out of the
	// reseller index.
	ResellerID *int64
	Status     string
	DailyLimit int
}

// resellerIndexer indexes technicians by reseller id, leaving unaffiliated ones unindexed
// so no lookup, including reseller 0, can reach them.
type resellerIndexer struct {
	ints memdb.IntFieldIndex
}

func (i *resellerIndexer) FromObject(obj any) (bool, []byte, error) {
	rec, ok := obj.(*memTechnician)
	if !ok {
		return false, nil, fmt.Errorf("reseller index: unexpected object %T", obj)
	}
	if rec.ResellerID == nil {
		return false, nil, nil
	}
	key, err := i.ints.FromArgs(*rec.ResellerID)
	if err != nil {
		return false, nil, err
	}
	return true, key, nil
}

func (i *resellerIndexer) FromArgs(args ...any) ([]byte, error) {
	return i.ints.FromArgs(args...)
}

type memTagItem struct {
	TagID      int64
	EntityType string
	EntityID   int64
}

type memDevice struct {
	ID   int64
	IMEI string
}

func accessMemDBSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableTechnicians: {
				Name: tableTechnicians,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexReseller: {
						Name:         indexReseller,
						AllowMissing: true,
						Indexer:      &resellerIndexer{},
					},
				},
			},
			tableRestrictions: {
				Name: tableRestrictions,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexTechnician: {
						Name:    indexTechnician,
						Indexer: &memdb.IntFieldIndex{Field: "TechnicianID"},
					},
				},
			},
			tableTagItems: {
				Name: tableTagItems,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "TagID"},
							&memdb.StringFieldIndex{Field: "EntityType"},
							&memdb.IntFieldIndex{Field: "EntityID"},
						}},
					},
					indexTag: {
						Name:    indexTag,
						Indexer: &memdb.IntFieldIndex{Field: "TagID"},
					},
				},
			},
			tableDevices: {
				Name: tableDevices,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "IMEI"},
					},
				},
			},
			tableVerification: {
				Name: tableVerification,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexSubjectDevice: {
						Name: indexSubjectDevice,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "TechnicianID"},
							&memdb.IntFieldIndex{Field: "DeviceID"},
						}},
					},
				},
			},
			tableAudit: {
				Name: tableAudit,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// MemoryStore implements every access port on go-memdb. It backs ACCESS_STORE=memory
// and the service tests. memdb admits one write transaction at a time, which is what
// serialises WithDeviceLock.
type MemoryStore struct {
	db *memdb.MemDB
}

var (
	_ ports.RuleStore            = (*MemoryStore)(nil)
	_ ports.TenantDirectory      = (*MemoryStore)(nil)
	_ ports.DeviceDirectory      = (*MemoryStore)(nil)
	_ ports.VerificationLogStore = (*MemoryStore)(nil)
	_ ports.AuditStore           = (*MemoryStore)(nil)
)

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(accessMemDBSchema())
	if err != nil {
		return nil, err
	}
	return &MemoryStore{db: db}, nil
}

func (s *MemoryStore) PutTechnician(t types.Technician) error {
	rec := &memTechnician{ID: t.ID, Status: string(t.Status), DailyLimit: t.DailyLimit}
	if t.ResellerID != nil {
		reseller := *t.ResellerID
		rec.ResellerID = &reseller
	}
	return s.write(func(txn *memdb.Txn) error { return txn.Insert(tableTechnicians, rec) })
}

func (s *MemoryStore) PutRestriction(r types.Restriction) error {
	if !r.Target.Valid() {
		return fmt.Errorf("restriction %d: target is not set", r.ID)
	}
	deviceID, tagID := r.Target.Columns()
	return s.PutRestrictionColumns(restrictionRecord{
		ID:           r.ID,
		TechnicianID: r.TechnicianID,
		DeviceID:     deviceID,
		TagID:        tagID,
		AccessType:   string(r.AccessType),
		Priority:     r.Priority,
		IsPermanent:  r.IsPermanent,
		ValidFrom:    r.ValidFrom,
		ValidUntil:   r.ValidUntil,
		Status:       string(r.Status),
	})
}

// PutRestrictionColumns stores a raw row, including rows that violate the target
// invariant, the way a hand-edited table would hold them.
func (s *MemoryStore) PutRestrictionColumns(rec restrictionRecord) error {
	return s.write(func(txn *memdb.Txn) error { return txn.Insert(tableRestrictions, &rec) })
}

func (s *MemoryStore) DeleteRestriction(id int64) error {
	return s.write(func(txn *memdb.Txn) error {
		_, err := txn.DeleteAll(tableRestrictions, indexID, id)
		return err
	})
}

func (s *MemoryStore) PutTagItem(item types.TagItem) error {
	rec := &memTagItem{TagID: item.TagID, EntityType: string(item.EntityType), EntityID: item.EntityID}
	return s.write(func(txn *memdb.Txn) error { return txn.Insert(tableTagItems, rec) })
}

func (s *MemoryStore) DeleteTagItem(item types.TagItem) error {
	return s.write(func(txn *memdb.Txn) error {
		_, err := txn.DeleteAll(tableTagItems, indexID, item.TagID, string(item.EntityType), item.EntityID)
		return err
	})
}

func (s *MemoryStore) PutDevice(d types.Device) error {
	rec := &memDevice{ID: d.ID, IMEI: d.IMEI}
	return s.write(func(txn *memdb.Txn) error { return txn.Insert(tableDevices, rec) })
}

func (s *MemoryStore) write(fn func(txn *memdb.Txn) error) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) GetActiveRestrictions(_ context.Context, technicianID int64) ([]types.Restriction, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(tableRestrictions, indexTechnician, technicianID)
	if err != nil {
		return nil, err
	}

	var recs []*restrictionRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*restrictionRecord)
		if rec.Status != string(types.StatusActive) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	out := make([]types.Restriction, 0, len(recs))
	var integrity *multierror.Error
	for _, rec := range recs {
		r, err := rec.toRestriction()
		if err != nil {
			integrity = multierror.Append(integrity, err)
			continue
		}
		out = append(out, r)
	}
	if err := integrity.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: technician %d: %w", ports.ErrRestrictionIntegrity, technicianID, err)
	}
	return out, nil
}

func (s *MemoryStore) GetTagDeviceMembers(_ context.Context, tagID int64) ([]int64, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(tableTagItems, indexTag, tagID)
	if err != nil {
		return nil, err
	}
	var out []int64
	for obj := it.Next(); obj != nil; obj = it.Next() {
		item := obj.(*memTagItem)
		if item.EntityType != string(types.EntityDevice) {
			continue
		}
		out = append(out, item.EntityID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) GetTechniciansByReseller(_ context.Context, resellerID int64, status types.Status) ([]types.Technician, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(tableTechnicians, indexReseller, resellerID)
	if err != nil {
		return nil, err
	}
	var out []types.Technician
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*memTechnician)
		if rec.Status != string(status) {
			continue
		}
		tech := types.Technician{ID: rec.ID, Status: types.Status(rec.Status), DailyLimit: rec.DailyLimit}
		if rec.ResellerID != nil {
			reseller := *rec.ResellerID
			tech.ResellerID = &reseller
		}
		out = append(out, tech)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ResolveDeviceID(_ context.Context, imei string) (int64, error) {
	txn := s.db.Txn(false)
	obj, err := txn.First(tableDevices, indexID, imei)
	if err != nil {
		return 0, err
	}
	if obj == nil {
		return 0, fmt.Errorf("imei %s: %w", imei, ports.ErrDeviceNotFound)
	}
	return obj.(*memDevice).ID, nil
}

func (s *MemoryStore) AppendAuditEvent(_ context.Context, ev types.AuditEvent) error {
	rec := ev
	return s.write(func(txn *memdb.Txn) error { return txn.Insert(tableAudit, &rec) })
}

// AuditEvents lists recorded audit events ordered by time.
func (s *MemoryStore) AuditEvents() ([]types.AuditEvent, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(tableAudit, indexID)
	if err != nil {
		return nil, err
	}
	var out []types.AuditEvent
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *obj.(*types.AuditEvent))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) WithDeviceLock(ctx context.Context, _ int64, _ int64, fn func(tx ports.VerificationLogTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(func(txn *memdb.Txn) error {
		return fn(memVerificationTx{txn: txn})
	})
}

// VerificationLogs returns every stored log for the pair, newest first.
func (s *MemoryStore) VerificationLogs(technicianID int64, deviceID int64) ([]types.VerificationLog, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(tableVerification, indexSubjectDevice, technicianID, deviceID)
	if err != nil {
		return nil, err
	}
	var out []types.VerificationLog
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *obj.(*types.VerificationLog))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VerifiedAt.After(out[j].VerifiedAt) })
	return out, nil
}

type memVerificationTx struct {
	txn *memdb.Txn
}

func (t memVerificationTx) FindRecent(_ context.Context, technicianID int64, deviceID int64, since time.Time) (*types.VerificationLog, error) {
	it, err := t.txn.Get(tableVerification, indexSubjectDevice, technicianID, deviceID)
	if err != nil {
		return nil, err
	}
	var best *types.VerificationLog
	for obj := it.Next(); obj != nil; obj = it.Next() {
		l := obj.(*types.VerificationLog)
		if l.VerifiedAt.Before(since) {
			continue
		}
		if best == nil || l.VerifiedAt.After(best.VerifiedAt) || (l.VerifiedAt.Equal(best.VerifiedAt) && l.ID > best.ID) {
			best = l
		}
	}
	if best == nil {
		return nil, nil
	}
	// Stored objects must not be mutated in place.
	cp := *best
	return &cp, nil
}

func (t memVerificationTx) Insert(_ context.Context, log *types.VerificationLog) (int64, error) {
	last, err := t.txn.Last(tableVerification, indexID)
	if err != nil {
		return 0, err
	}
	var id int64 = 1
	if last != nil {
		id = last.(*types.VerificationLog).ID + 1
	}
	rec := *log
	rec.ID = id
	if err := t.txn.Insert(tableVerification, &rec); err != nil {
		return 0, err
	}
	log.ID = id
	return id, nil
}

func (t memVerificationTx) Update(_ context.Context, log *types.VerificationLog) error {
	existing, err := t.txn.First(tableVerification, indexID, log.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("verification %d: %w", log.ID, ports.ErrVerificationNotFound)
	}
	rec := *log
	return t.txn.Insert(tableVerification, &rec)
}
