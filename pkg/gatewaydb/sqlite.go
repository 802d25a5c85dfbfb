package gatewaydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig configures the SQLite-backed Store.
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	WALMode      bool
	BusyTimeout  time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/gateway.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on top of modernc.org/sqlite, a pure-Go
// driver that avoids the cgo requirement mattn/go-sqlite3 carries.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (and, if necessary, creates) the gateway
// database, applying the schema and verifying its version.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "gatewaydb.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, NewDataStoreError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite gatewaydb initialized", "path", config.Path, "wal_mode", config.WALMode)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewDataStoreError("sqlite", "enable_wal", err)
		}
	}

	busyMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyMs)); err != nil {
		return NewDataStoreError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewDataStoreError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewDataStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewDataStoreError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewDataStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

func (s *SQLiteStore) LoadTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	row := s.db.QueryRowContext(ctx, `SELECT id, display_name, active FROM tenants WHERE id = ?`, id)
	if err := row.Scan(&t.ID, &t.DisplayName, &t.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewNotFoundError("sqlite", "load_tenant")
		}
		return nil, NewDataStoreError("sqlite", "load_tenant", err)
	}
	return &t, nil
}

func (s *SQLiteStore) LoadServiceAPI(ctx context.Context, id string) (*ServiceAPI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, provider_type_id, pool_key_ids,
		scheduling_strategy, route_overrides, allowed_models, auth_query_param_name,
		credential_fingerprint, rate_limit_per_minute, allowed_cidrs, allowed_path_prefixes, active
		FROM service_apis WHERE id = ?`, id)
	return s.scanServiceAPI(ctx, row)
}

func (s *SQLiteStore) LoadServiceAPIByFingerprint(ctx context.Context, fingerprint string) (*ServiceAPI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, provider_type_id, pool_key_ids,
		scheduling_strategy, route_overrides, allowed_models, auth_query_param_name,
		credential_fingerprint, rate_limit_per_minute, allowed_cidrs, allowed_path_prefixes, active
		FROM service_apis WHERE credential_fingerprint = ?`, fingerprint)
	return s.scanServiceAPI(ctx, row)
}

func (s *SQLiteStore) scanServiceAPI(ctx context.Context, row *sql.Row) (*ServiceAPI, error) {
	var sa ServiceAPI
	var poolKeyIDs, routeOverrides, allowedModels sql.NullString
	var authParam, fingerprint sql.NullString
	var allowedCIDRs, allowedPathPrefixes sql.NullString
	if err := row.Scan(&sa.ID, &sa.TenantID, &sa.ProviderTypeID, &poolKeyIDs,
		&sa.SchedulingStrategy, &routeOverrides, &allowedModels, &authParam,
		&fingerprint, &sa.RateLimitPerMinute, &allowedCIDRs, &allowedPathPrefixes, &sa.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewNotFoundError("sqlite", "load_service_api")
		}
		return nil, NewDataStoreError("sqlite", "load_service_api", err)
	}

	if poolKeyIDs.Valid && poolKeyIDs.String != "" {
		json.Unmarshal([]byte(poolKeyIDs.String), &sa.PoolKeyIDs)
	}
	if routeOverrides.Valid && routeOverrides.String != "" {
		json.Unmarshal([]byte(routeOverrides.String), &sa.RouteOverrides)
	}
	if allowedModels.Valid && allowedModels.String != "" {
		json.Unmarshal([]byte(allowedModels.String), &sa.AllowedModels)
	}
	if allowedCIDRs.Valid && allowedCIDRs.String != "" {
		json.Unmarshal([]byte(allowedCIDRs.String), &sa.AllowedCIDRs)
	}
	if allowedPathPrefixes.Valid && allowedPathPrefixes.String != "" {
		json.Unmarshal([]byte(allowedPathPrefixes.String), &sa.AllowedPathPrefixes)
	}
	sa.AuthQueryParamName = authParam.String
	sa.CredentialFingerprint = fingerprint.String

	if err := s.rejectCrossTenantPool(ctx, &sa); err != nil {
		return nil, err
	}

	return &sa, nil
}

// rejectCrossTenantPool fails a load whose pool references a key owned
// by a different tenant than the ServiceAPI: a ConfigError at load
// time, not a runtime selection failure.
func (s *SQLiteStore) rejectCrossTenantPool(ctx context.Context, sa *ServiceAPI) error {
	if len(sa.PoolKeyIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sa.PoolKeyIDs)), ",")
	args := make([]interface{}, 0, len(sa.PoolKeyIDs)+1)
	args = append(args, sa.TenantID)
	for _, id := range sa.PoolKeyIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM provider_keys WHERE tenant_id != ? AND id IN (%s)`, placeholders)
	var mismatched int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&mismatched); err != nil {
		return NewDataStoreError("sqlite", "check_pool_tenancy", err)
	}
	if mismatched > 0 {
		return NewConfigError(sa.ID, "pool references a key owned by a different tenant")
	}
	return nil
}

func (s *SQLiteStore) LoadProviderType(ctx context.Context, id string) (*ProviderType, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, base_url, auth_header_template,
		token_mappings, model_extraction_rules, fallback_model, default_rate_limit_window_ms,
		strip_path_prefix, active
		FROM provider_types WHERE id = ?`, id)

	var pt ProviderType
	var tokenMappings, extractionRules, stripPrefix sql.NullString
	var windowMs int64
	if err := row.Scan(&pt.ID, &pt.Name, &pt.BaseURL, &pt.AuthHeaderTemplate,
		&tokenMappings, &extractionRules, &pt.FallbackModel, &windowMs, &stripPrefix, &pt.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewNotFoundError("sqlite", "load_provider_type")
		}
		return nil, NewDataStoreError("sqlite", "load_provider_type", err)
	}

	pt.DefaultRateLimitWindow = time.Duration(windowMs) * time.Millisecond
	pt.StripPathPrefix = stripPrefix.String
	if tokenMappings.Valid && tokenMappings.String != "" {
		json.Unmarshal([]byte(tokenMappings.String), &pt.TokenMappings)
	}
	if extractionRules.Valid && extractionRules.String != "" {
		json.Unmarshal([]byte(extractionRules.String), &pt.ModelExtractionRules)
	}

	return &pt, nil
}

func (s *SQLiteStore) LoadProviderKeys(ctx context.Context, ids []string) ([]*ProviderKey, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`SELECT id, tenant_id, provider_type_id, auth_type, secret_material,
		oauth_session_id, weight, quota_requests_per_min, quota_requests_per_day,
		quota_prompt_tokens_pm, health_status, rate_limit_resets_at, last_error_at,
		expires_at, project_id, active, created_at, updated_at
		FROM provider_keys WHERE active = 1 AND id IN (%s)`, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewDataStoreError("sqlite", "load_provider_keys", err)
	}
	defer rows.Close()

	byID := make(map[string]*ProviderKey)
	for rows.Next() {
		k, err := scanProviderKey(rows)
		if err != nil {
			return nil, NewDataStoreError("sqlite", "scan_provider_key", err)
		}
		byID[k.ID] = k
	}
	if err := rows.Err(); err != nil {
		return nil, NewDataStoreError("sqlite", "load_provider_keys", err)
	}

	// Preserve caller-supplied order.
	out := make([]*ProviderKey, 0, len(ids))
	for _, id := range ids {
		if k, ok := byID[id]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func scanProviderKey(rows *sql.Rows) (*ProviderKey, error) {
	var k ProviderKey
	var resetsAt, lastError, expiresAt sql.NullTime

	err := rows.Scan(&k.ID, &k.TenantID, &k.ProviderTypeID, &k.AuthType, &k.SecretMaterial,
		&k.OAuthSessionID, &k.Weight, &k.QuotaRequestsPerMin, &k.QuotaRequestsPerDay,
		&k.QuotaPromptTokensPM, &k.HealthStatus, &resetsAt, &lastError,
		&expiresAt, &k.ProjectID, &k.Active, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if resetsAt.Valid {
		t := resetsAt.Time
		k.RateLimitResetsAt = &t
	}
	if lastError.Valid {
		t := lastError.Time
		k.LastErrorAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}

func (s *SQLiteStore) LoadOAuthSession(ctx context.Context, sessionID string) (*OAuthSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, tenant_id, provider_type_id, status,
		state, code_verifier, code_challenge, redirect_uri, scopes, access_token,
		refresh_token, id_token, expires_at, session_expires_at, completed_at, error_message
		FROM oauth_sessions WHERE session_id = ?`, sessionID)

	var sess OAuthSession
	var scopes sql.NullString
	var expiresAt, completedAt sql.NullTime
	if err := row.Scan(&sess.SessionID, &sess.TenantID, &sess.ProviderTypeID, &sess.Status,
		&sess.State, &sess.CodeVerifier, &sess.CodeChallenge, &sess.RedirectURI, &scopes,
		&sess.AccessToken, &sess.RefreshToken, &sess.IDToken, &expiresAt,
		&sess.SessionExpiresAt, &completedAt, &sess.ErrorMessage); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewNotFoundError("sqlite", "load_oauth_session")
		}
		return nil, NewDataStoreError("sqlite", "load_oauth_session", err)
	}

	if scopes.Valid && scopes.String != "" {
		sess.Scopes = strings.Split(scopes.String, ",")
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		sess.ExpiresAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}

	return &sess, nil
}

func (s *SQLiteStore) PersistOAuthTokens(ctx context.Context, sessionID, accessToken, refreshToken, idToken string, expiresAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE oauth_sessions SET
		access_token = ?,
		refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END,
		id_token = CASE WHEN ? != '' THEN ? ELSE id_token END,
		expires_at = ?,
		status = ?
		WHERE session_id = ?`,
		accessToken, refreshToken, refreshToken, idToken, idToken, expiresAt, OAuthAuthorized, sessionID)
	if err != nil {
		return NewDataStoreError("sqlite", "persist_oauth_tokens", err)
	}
	return checkRowsAffected(result, "persist_oauth_tokens")
}

func (s *SQLiteStore) MarkOAuthSessionError(ctx context.Context, sessionID, cause string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE oauth_sessions SET
		status = ?, error_message = ?
		WHERE session_id = ?`, OAuthError, cause, sessionID)
	if err != nil {
		return NewDataStoreError("sqlite", "mark_oauth_session_error", err)
	}
	return checkRowsAffected(result, "mark_oauth_session_error")
}

func (s *SQLiteStore) MarkKeyHealth(ctx context.Context, keyID string, status HealthStatus, resetsAt *time.Time) error {
	var lastError *time.Time
	if status == HealthUnhealthy {
		now := time.Now()
		lastError = &now
	}
	if status != HealthRateLimited {
		resetsAt = nil
	}

	result, err := s.db.ExecContext(ctx, `UPDATE provider_keys SET
		health_status = ?, rate_limit_resets_at = ?, last_error_at = ?, updated_at = ?
		WHERE id = ?`, status, resetsAt, lastError, time.Now(), keyID)
	if err != nil {
		return NewDataStoreError("sqlite", "mark_key_health", err)
	}
	return checkRowsAffected(result, "mark_key_health")
}

func (s *SQLiteStore) MarkKeyReset(ctx context.Context, keyID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE provider_keys SET
		health_status = 'healthy', rate_limit_resets_at = NULL, updated_at = ?
		WHERE id = ? AND health_status = 'rate_limited'`, time.Now(), keyID)
	if err != nil {
		return NewDataStoreError("sqlite", "mark_key_reset", err)
	}
	// No rows affected means the key is gone or no longer rate_limited;
	// that is a correct no-op for delayed validation, not an error.
	return nil
}

func (s *SQLiteStore) TraceInsert(ctx context.Context, t *Trace) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO traces (
		request_id, tenant_id, service_api_id, method, path, client_ip, user_agent, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RequestID, t.TenantID, t.ServiceAPIID, t.Method, t.Path, t.ClientIP, t.UserAgent, t.CreatedAt)
	if err != nil {
		return NewDataStoreError("sqlite", "trace_insert", err)
	}
	return nil
}

func (s *SQLiteStore) TraceUpdateIntermediate(ctx context.Context, requestID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for col, val := range fields {
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	args = append(args, requestID)

	query := fmt.Sprintf("UPDATE traces SET %s WHERE request_id = ?", strings.Join(setClauses, ", "))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return NewDataStoreError("sqlite", "trace_update_intermediate", err)
	}
	return nil
}

func (s *SQLiteStore) TraceUpdateCompletion(ctx context.Context, t *Trace) error {
	result, err := s.db.ExecContext(ctx, `UPDATE traces SET
		provider_type_id = ?, provider_key_id = ?, status_code = ?, success = ?,
		completed_at = ?, duration_ms = ?, tokens_prompt = ?, tokens_completion = ?,
		tokens_total = ?, cache_create_tokens = ?, cache_read_tokens = ?, cost = ?,
		cost_currency = ?, model_used = ?, error_type = ?, error_message = ?
		WHERE request_id = ?`,
		t.ProviderTypeID, t.ProviderKeyID, t.StatusCode, t.Success, t.CompletedAt,
		t.DurationMS, t.TokensPrompt, t.TokensCompletion, t.TokensTotal,
		t.CacheCreateTokens, t.CacheReadTokens, t.Cost, t.CostCurrency, t.ModelUsed,
		t.ErrorType, t.ErrorMessage, t.RequestID)
	if err != nil {
		return NewDataStoreError("sqlite", "trace_update_completion", err)
	}
	return checkRowsAffected(result, "trace_update_completion")
}

func (s *SQLiteStore) ListRateLimitedKeys(ctx context.Context) ([]*ProviderKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tenant_id, provider_type_id, auth_type, secret_material,
		oauth_session_id, weight, quota_requests_per_min, quota_requests_per_day,
		quota_prompt_tokens_pm, health_status, rate_limit_resets_at, last_error_at,
		expires_at, project_id, active, created_at, updated_at
		FROM provider_keys WHERE health_status = 'rate_limited'`)
	if err != nil {
		return nil, NewDataStoreError("sqlite", "list_rate_limited_keys", err)
	}
	defer rows.Close()

	out := make([]*ProviderKey, 0)
	for rows.Next() {
		k, err := scanProviderKey(rows)
		if err != nil {
			return nil, NewDataStoreError("sqlite", "scan_provider_key", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAuthorizedOAuthSessions(ctx context.Context) ([]*OAuthSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT os.session_id, os.tenant_id, os.provider_type_id,
		os.status, os.state, os.code_verifier, os.code_challenge, os.redirect_uri, os.scopes,
		os.access_token, os.refresh_token, os.id_token, os.expires_at, os.session_expires_at,
		os.completed_at, os.error_message
		FROM oauth_sessions os
		JOIN provider_keys pk ON pk.oauth_session_id = os.session_id
		WHERE os.status = 'authorized' AND pk.active = 1 AND pk.auth_type = 'oauth'`)
	if err != nil {
		return nil, NewDataStoreError("sqlite", "list_authorized_oauth_sessions", err)
	}
	defer rows.Close()

	out := make([]*OAuthSession, 0)
	for rows.Next() {
		var sess OAuthSession
		var scopes sql.NullString
		var expiresAt, completedAt sql.NullTime
		if err := rows.Scan(&sess.SessionID, &sess.TenantID, &sess.ProviderTypeID, &sess.Status,
			&sess.State, &sess.CodeVerifier, &sess.CodeChallenge, &sess.RedirectURI, &scopes,
			&sess.AccessToken, &sess.RefreshToken, &sess.IDToken, &expiresAt,
			&sess.SessionExpiresAt, &completedAt, &sess.ErrorMessage); err != nil {
			return nil, NewDataStoreError("sqlite", "scan_oauth_session", err)
		}
		if scopes.Valid && scopes.String != "" {
			sess.Scopes = strings.Split(scopes.String, ",")
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			sess.ExpiresAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			sess.CompletedAt = &t
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListActiveSessionsForTenant(ctx context.Context, tenantID string) ([]*OAuthSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, tenant_id, provider_type_id, status,
		state, code_verifier, code_challenge, redirect_uri, scopes, access_token,
		refresh_token, id_token, expires_at, session_expires_at, completed_at, error_message
		FROM oauth_sessions
		WHERE tenant_id = ?
		  AND status NOT IN ('error', 'revoked', 'expired')
		  AND session_expires_at > ?`, tenantID, time.Now())
	if err != nil {
		return nil, NewDataStoreError("sqlite", "list_active_sessions_for_tenant", err)
	}
	defer rows.Close()

	out := make([]*OAuthSession, 0)
	for rows.Next() {
		var sess OAuthSession
		var scopes sql.NullString
		var expiresAt, completedAt sql.NullTime
		if err := rows.Scan(&sess.SessionID, &sess.TenantID, &sess.ProviderTypeID, &sess.Status,
			&sess.State, &sess.CodeVerifier, &sess.CodeChallenge, &sess.RedirectURI, &scopes,
			&sess.AccessToken, &sess.RefreshToken, &sess.IDToken, &expiresAt,
			&sess.SessionExpiresAt, &completedAt, &sess.ErrorMessage); err != nil {
			return nil, NewDataStoreError("sqlite", "scan_oauth_session", err)
		}
		if scopes.Valid && scopes.String != "" {
			sess.Scopes = strings.Split(scopes.String, ",")
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			sess.ExpiresAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			sess.CompletedAt = &t
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RevokeTenantSessions(ctx context.Context, tenantID, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE oauth_sessions SET
		status = 'revoked', error_message = ?, completed_at = ?
		WHERE tenant_id = ? AND status NOT IN ('error', 'revoked', 'expired')`,
		reason, time.Now(), tenantID)
	if err != nil {
		return 0, NewDataStoreError("sqlite", "revoke_tenant_sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, NewDataStoreError("sqlite", "revoke_tenant_sessions", err)
	}
	return n, nil
}

func (s *SQLiteStore) PruneTraces(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM traces WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, NewDataStoreError("sqlite", "prune_traces", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, NewDataStoreError("sqlite", "prune_traces", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewDataStoreError("sqlite", "close", err)
	}
	return nil
}

func checkRowsAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return NewDataStoreError("sqlite", op, err)
	}
	if n == 0 {
		return NewNotFoundError("sqlite", op)
	}
	return nil
}
