package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-export/internal/types"
)

// -----------------------------------------------------------------------------
// Profiles
// -----------------------------------------------------------------------------

// SaveMappingProfile inserts or replaces a mapping profile document
func (db *DB) SaveMappingProfile(ctx context.Context, profile *types.MappingProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	content, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping profile: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO mapping_profiles (id, name, is_default, content)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = $2, is_default = $3, content = $4, updated_at = NOW()`,
		profile.ID, profile.Name, profile.Default, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save mapping profile %s: %w", profile.Name, err)
	}
	return nil
}

// SaveJobProfile links a job profile to its mapping profile
func (db *DB) SaveJobProfile(ctx context.Context, id uuid.UUID, name string, mappingProfileID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO job_profiles (id, name, mapping_profile_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = $2, mapping_profile_id = $3`,
		id, name, mappingProfileID,
	)
	if err != nil {
		return fmt.Errorf("failed to save job profile %s: %w", name, err)
	}
	return nil
}

// GetMappingProfile returns the mapping profile a job profile uses
func (db *DB) GetMappingProfile(ctx context.Context, jobProfileID uuid.UUID) (*types.MappingProfile, error) {
	var (
		content   []byte
		isDefault bool
	)
	err := db.pool.QueryRow(ctx,
		`SELECT m.content, m.is_default
		 FROM job_profiles j JOIN mapping_profiles m ON m.id = j.mapping_profile_id
		 WHERE j.id = $1`,
		jobProfileID,
	).Scan(&content, &isDefault)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mapping profile of job profile %s: %w", jobProfileID, err)
	}

	var profile types.MappingProfile
	if err := json.Unmarshal(content, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping profile: %w", err)
	}
	profile.Default = profile.Default || isDefault
	return &profile, nil
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

// SaveReferenceEntry inserts or replaces one reference record of a tenant
func (db *DB) SaveReferenceEntry(ctx context.Context, tenant, table, id string, fields map[string]string) error {
	content, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal reference entry: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO reference_data (tenant, table_name, id, content)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant, table_name, id) DO UPDATE SET content = $4`,
		tenant, table, id, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save reference entry %s/%s: %w", table, id, err)
	}
	return nil
}

// GetReferenceData loads every reference table of a tenant
func (db *DB) GetReferenceData(ctx context.Context, tenant string) (*types.ReferenceData, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT table_name, id, content FROM reference_data WHERE tenant = $1`,
		tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data of %s: %w", tenant, err)
	}
	defer rows.Close()

	ref := &types.ReferenceData{}
	for rows.Next() {
		var (
			table, id string
			content   []byte
		)
		if err := rows.Scan(&table, &id, &content); err != nil {
			return nil, fmt.Errorf("failed to scan reference entry: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal(content, &fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reference entry %s/%s: %w", table, id, err)
		}
		addReference(ref, table, id, fields)
	}
	return ref, rows.Err()
}

// addReference files an entry under its table; unknown tables are ignored
func addReference(ref *types.ReferenceData, table, id string, fields map[string]string) {
	var entries *map[string]map[string]string
	switch table {
	case "locations":
		entries = &ref.Locations
	case "material_types":
		entries = &ref.MaterialTypes
	case "instance_types":
		entries = &ref.InstanceTypes
	case "contributor_name_types":
		entries = &ref.ContributorNameTypes
	default:
		return
	}
	if *entries == nil {
		*entries = make(map[string]map[string]string)
	}
	(*entries)[id] = fields
}
