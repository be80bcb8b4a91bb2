package store

import (
	"context"
	"database/sql"
	"time"
)

// CredentialFamily distinguishes the two OAuth families spec.md §4.1
// describes: the Cloud Code family (generally available) and the
// Antigravity family (a separate OAuth client, with its own general and
// V3-capable pool queues).
type CredentialFamily string

const (
	FamilyCloudCode   CredentialFamily = "cloud_code"
	FamilyAntigravity CredentialFamily = "antigravity"
)

// CredentialStatus mirrors the Credential Pool Engine's state machine
// (spec.md §4.1): VALIDATING -> ACTIVE -> {COOLING, DEAD}.
type CredentialStatus string

const (
	StatusValidating CredentialStatus = "validating"
	StatusActive     CredentialStatus = "active"
	StatusCooling    CredentialStatus = "cooling"
	StatusDead       CredentialStatus = "dead"
)

// GoogleCredential is one upstream credential contributed by a user,
// persisted so the pool can be rebuilt from durable storage after a
// coordination-store flush. Grounded on the teacher's pkg/redis/accounts.go
// Account struct, split here into the relational shape a multi-tenant
// owner mapping needs (owner_user_id) instead of a single global account
// list.
type GoogleCredential struct {
	ID             string
	OwnerUserID    string
	Family         CredentialFamily
	Email          string
	RefreshToken   string // composite "refreshToken|projectId|managedProjectId" for cloud_code
	ProjectID      string
	ManagedProject string
	V3Capable      bool
	Status         CredentialStatus
	StrikeCount    int
	CoolingUntil   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Store) CreateCredential(ctx context.Context, c GoogleCredential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO google_credentials
		 (id, owner_user_id, family, email, refresh_token, project_id, managed_project,
		  v3_capable, status, strike_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerUserID, string(c.Family), c.Email, c.RefreshToken, c.ProjectID, c.ManagedProject,
		boolToInt(c.V3Capable), string(c.Status), c.StrikeCount, rfc3339(c.CreatedAt), rfc3339(c.UpdatedAt))
	return err
}

func (s *Store) GetCredential(ctx context.Context, id string) (*GoogleCredential, error) {
	row := s.db.QueryRowContext(ctx, credentialSelect+` WHERE id = ?`, id)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCredentialsByFamily returns every credential in a family regardless
// of status, used at boot to seed the two coordination-store pools
// (spec.md §4.1).
func (s *Store) ListCredentialsByFamily(ctx context.Context, family CredentialFamily) ([]GoogleCredential, error) {
	rows, err := s.db.QueryContext(ctx, credentialSelect+` WHERE family = ? ORDER BY created_at`, string(family))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentialRows(rows)
}

func (s *Store) ListCredentialsByOwner(ctx context.Context, ownerUserID string) ([]GoogleCredential, error) {
	rows, err := s.db.QueryContext(ctx, credentialSelect+` WHERE owner_user_id = ? ORDER BY created_at`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredentialRows(rows)
}

// UpdateCredentialStatus persists a pool-engine state transition
// (markCooling/markDead/restore, spec.md §4.1) back to durable storage.
func (s *Store) UpdateCredentialStatus(ctx context.Context, id string, status CredentialStatus, strikeCount int, coolingUntil *time.Time) error {
	var coolingStr interface{}
	if coolingUntil != nil {
		coolingStr = rfc3339(*coolingUntil)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE google_credentials SET status = ?, strike_count = ?, cooling_until = ?, updated_at = ? WHERE id = ?`,
		string(status), strikeCount, coolingStr, rfc3339(time.Now()), id)
	return err
}

const credentialSelect = `
SELECT id, owner_user_id, family, email, refresh_token, project_id, managed_project,
       v3_capable, status, strike_count, cooling_until, created_at, updated_at
FROM google_credentials
`

func scanCredential(row scanner) (*GoogleCredential, error) {
	var c GoogleCredential
	var family, status string
	var v3 int
	var cooling sql.NullString
	var created, updated string
	err := row.Scan(&c.ID, &c.OwnerUserID, &family, &c.Email, &c.RefreshToken, &c.ProjectID, &c.ManagedProject,
		&v3, &status, &c.StrikeCount, &cooling, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Family = CredentialFamily(family)
	c.Status = CredentialStatus(status)
	c.V3Capable = v3 != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if cooling.Valid {
		t, _ := time.Parse(time.RFC3339, cooling.String)
		c.CoolingUntil = &t
	}
	return &c, nil
}

func scanCredentialRows(rows *sql.Rows) ([]GoogleCredential, error) {
	var out []GoogleCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
