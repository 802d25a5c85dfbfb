package gatewaydb

// SchemaVersion is the current gatewaydb schema version, checked
// against the schema_version table on open.
const SchemaVersion = 1

// Schema creates the gateway's relational tables. Provider keys and
// service APIs store their pool membership and scope lists as JSON
// columns; the data is always read and written as a whole, so join
// tables would buy nothing.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS provider_types (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    base_url TEXT NOT NULL,
    auth_header_template TEXT NOT NULL,
    token_mappings TEXT,
    model_extraction_rules TEXT,
    fallback_model TEXT,
    default_rate_limit_window_ms INTEGER NOT NULL DEFAULT 60000,
    strip_path_prefix TEXT,
    active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS provider_keys (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    provider_type_id TEXT NOT NULL,
    auth_type TEXT NOT NULL,
    secret_material TEXT,
    oauth_session_id TEXT,
    weight INTEGER NOT NULL DEFAULT 1,
    quota_requests_per_min INTEGER NOT NULL DEFAULT 0,
    quota_requests_per_day INTEGER NOT NULL DEFAULT 0,
    quota_prompt_tokens_pm INTEGER NOT NULL DEFAULT 0,
    health_status TEXT NOT NULL DEFAULT 'healthy',
    rate_limit_resets_at TIMESTAMP,
    last_error_at TIMESTAMP,
    expires_at TIMESTAMP,
    project_id TEXT,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS oauth_sessions (
    session_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    provider_type_id TEXT NOT NULL,
    status TEXT NOT NULL,
    state TEXT NOT NULL,
    code_verifier TEXT,
    code_challenge TEXT,
    redirect_uri TEXT,
    scopes TEXT,
    access_token TEXT,
    refresh_token TEXT,
    id_token TEXT,
    expires_at TIMESTAMP,
    session_expires_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS service_apis (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    provider_type_id TEXT NOT NULL,
    pool_key_ids TEXT,
    scheduling_strategy TEXT NOT NULL DEFAULT 'round_robin',
    route_overrides TEXT,
    allowed_models TEXT,
    auth_query_param_name TEXT,
    credential_fingerprint TEXT,
    rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
    allowed_cidrs TEXT,
    allowed_path_prefixes TEXT,
    active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS traces (
    request_id TEXT PRIMARY KEY,
    tenant_id TEXT,
    service_api_id TEXT,
    provider_type_id TEXT,
    provider_key_id TEXT,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    client_ip TEXT,
    user_agent TEXT,
    status_code INTEGER,
    success BOOLEAN,
    created_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    duration_ms INTEGER,
    tokens_prompt INTEGER,
    tokens_completion INTEGER,
    tokens_total INTEGER,
    cache_create_tokens INTEGER,
    cache_read_tokens INTEGER,
    cost REAL,
    cost_currency TEXT,
    model_used TEXT,
    error_type TEXT,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provider_keys_tenant ON provider_keys(tenant_id);
CREATE INDEX IF NOT EXISTS idx_provider_keys_health ON provider_keys(health_status);
CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at);
CREATE INDEX IF NOT EXISTS idx_traces_completed_at ON traces(completed_at);
CREATE INDEX IF NOT EXISTS idx_traces_service_api ON traces(service_api_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_service_apis_fingerprint ON service_apis(credential_fingerprint);
`

// InsertSchemaVersion records the applied schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the most recently applied schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
