package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
)

type fakeStore struct {
	mu sync.Mutex

	restrictions map[int64][]types.Restriction
	tags         map[int64][]int64
	technicians  map[int64][]types.Technician
	devices      map[string]int64
	logs         []types.VerificationLog
	audit        []types.AuditEvent

	restrictionsErr map[int64]error
	tagErr          error
	techErr         error
	deviceErr       error
	auditErr        error
	lockErr         error
	findErr         error
	insertErr       error
	updateErr       error

	tagCalls map[int64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		restrictions:    map[int64][]types.Restriction{},
		tags:            map[int64][]int64{},
		technicians:     map[int64][]types.Technician{},
		devices:         map[string]int64{},
		restrictionsErr: map[int64]error{},
		tagCalls:        map[int64]int{},
	}
}

func (f *fakeStore) addRule(r types.Restriction) {
	if r.Status == "" {
		r.Status = types.StatusActive
	}
	f.restrictions[r.TechnicianID] = append(f.restrictions[r.TechnicianID], r)
}

func (f *fakeStore) addTechnician(resellerID int64, id int64) {
	rid := resellerID
	f.technicians[resellerID] = append(f.technicians[resellerID], types.Technician{ID: id, ResellerID: &rid, Status: types.StatusActive})
}

func (f *fakeStore) GetActiveRestrictions(_ context.Context, technicianID int64) ([]types.Restriction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.restrictionsErr[technicianID]; err != nil {
		return nil, err
	}
	var out []types.Restriction
	for _, r := range f.restrictions[technicianID] {
		if r.Status == types.StatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTagDeviceMembers(_ context.Context, tagID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls[tagID]++
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	return append([]int64(nil), f.tags[tagID]...), nil
}

func (f *fakeStore) GetTechniciansByReseller(_ context.Context, resellerID int64, status types.Status) ([]types.Technician, error) {
	if f.techErr != nil {
		return nil, f.techErr
	}
	var out []types.Technician
	for _, t := range f.technicians[resellerID] {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveDeviceID(_ context.Context, imei string) (int64, error) {
	if f.deviceErr != nil {
		return 0, f.deviceErr
	}
	id, ok := f.devices[imei]
	if !ok {
		return 0, fmt.Errorf("imei %s: %w", imei, ports.ErrDeviceNotFound)
	}
	return id, nil
}

func (f *fakeStore) AppendAuditEvent(_ context.Context, ev types.AuditEvent) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	f.audit = append(f.audit, ev)
	return nil
}

func (f *fakeStore) WithDeviceLock(_ context.Context, _ int64, _ int64, fn func(tx ports.VerificationLogTx) error) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := append([]types.VerificationLog(nil), f.logs...)
	if err := fn(fakeLogTx{f: f}); err != nil {
		f.logs = snapshot
		return err
	}
	return nil
}

type fakeLogTx struct {
	f *fakeStore
}

func (tx fakeLogTx) FindRecent(_ context.Context, technicianID int64, deviceID int64, since time.Time) (*types.VerificationLog, error) {
	if tx.f.findErr != nil {
		return nil, tx.f.findErr
	}
	var best *types.VerificationLog
	for i := range tx.f.logs {
		l := tx.f.logs[i]
		if l.TechnicianID != technicianID || l.DeviceID != deviceID || l.VerifiedAt.Before(since) {
			continue
		}
		if best == nil || l.VerifiedAt.After(best.VerifiedAt) {
			cp := l
			best = &cp
		}
	}
	return best, nil
}

func (tx fakeLogTx) Insert(_ context.Context, log *types.VerificationLog) (int64, error) {
	if tx.f.insertErr != nil {
		return 0, tx.f.insertErr
	}
	log.ID = int64(len(tx.f.logs) + 1)
	tx.f.logs = append(tx.f.logs, *log)
	return log.ID, nil
}

func (tx fakeLogTx) Update(_ context.Context, log *types.VerificationLog) error {
	if tx.f.updateErr != nil {
		return tx.f.updateErr
	}
	for i := range tx.f.logs {
		if tx.f.logs[i].ID == log.ID {
			tx.f.logs[i] = *log
			return nil
		}
	}
	return ports.ErrVerificationNotFound
}

func ptrTime(t time.Time) *time.Time { return &t }

func permanent(id int64, technicianID int64, target types.Target, access types.AccessType) types.Restriction {
	return types.Restriction{ID: id, TechnicianID: technicianID, Target: target, AccessType: access, IsPermanent: true, Status: types.StatusActive}
}
