package persistence

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document loaded into a MemoryStore by ACCESS_SEED_PATH.
type Seed struct {
	Devices      []SeedDevice      `yaml:"devices"`
	Technicians  []SeedTechnician  `yaml:"technicians"`
	Tags         []SeedTag         `yaml:"tags"`
	Restrictions []SeedRestriction `yaml:"restrictions"`
}

type SeedDevice struct {
	ID   int64  `yaml:"id"`
	IMEI string `yaml:"imei"`
}

type SeedTechnician struct {
	ID         int64  `yaml:"id"`
	ResellerID *int64 `yaml:"reseller_id"`
	Status     string `yaml:"status"`
	DailyLimit int    `yaml:"daily_limit"`
}

type SeedTag struct {
	ID      int64   `yaml:"id"`
	Name    string  `yaml:"name"`
	Scope   string  `yaml:"scope"`
	Devices []int64 `yaml:"devices"`
}

type SeedRestriction struct {
	ID           int64      `yaml:"id"`
	TechnicianID int64      `yaml:"technician_id"`
	DeviceID     *int64     `yaml:"device_id"`
	TagID        *int64     `yaml:"tag_id"`
	AccessType   string     `yaml:"access_type"`
	Priority     int        `yaml:"priority"`
	IsPermanent  bool       `yaml:"is_permanent"`
	ValidFrom    *time.Time `yaml:"valid_from"`
	ValidUntil   *time.Time `yaml:"valid_until"`
	Status       string     `yaml:"status"`
}

func LoadSeedFile(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(b)
}

func ParseSeed(b []byte) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}

// Apply loads the seed into store. Restriction rows are stored as written so that
// integrity faults surface on read, the same as with the SQL store.
func (seed Seed) Apply(store *MemoryStore) error {
	for _, d := range seed.Devices {
		if strings.TrimSpace(d.IMEI) == "" {
			return fmt.Errorf("seed device %d: imei is required", d.ID)
		}
		if err := store.PutDevice(types.Device{ID: d.ID, IMEI: strings.TrimSpace(d.IMEI)}); err != nil {
			return err
		}
	}
	for _, t := range seed.Technicians {
		status := types.Status(defaultString(t.Status, string(types.StatusActive)))
		if err := store.PutTechnician(types.Technician{ID: t.ID, ResellerID: t.ResellerID, Status: status, DailyLimit: t.DailyLimit}); err != nil {
			return err
		}
	}
	for _, tag := range seed.Tags {
		for _, deviceID := range tag.Devices {
			if err := store.PutTagItem(types.TagItem{TagID: tag.ID, EntityType: types.EntityDevice, EntityID: deviceID}); err != nil {
				return err
			}
		}
	}
	for _, r := range seed.Restrictions {
		if err := store.PutRestrictionColumns(restrictionRecord{
			ID:           r.ID,
			TechnicianID: r.TechnicianID,
			DeviceID:     r.DeviceID,
			TagID:        r.TagID,
			AccessType:   strings.ToLower(strings.TrimSpace(r.AccessType)),
			Priority:     r.Priority,
			IsPermanent:  r.IsPermanent,
			ValidFrom:    r.ValidFrom,
			ValidUntil:   r.ValidUntil,
			Status:       defaultString(r.Status, string(types.StatusActive)),
		}); err != nil {
			return err
		}
	}
	return nil
}

func defaultString(v string, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
