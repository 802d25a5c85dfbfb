// Package secrets resolves credential material from pluggable
// backends, so ProviderKey rows can store ${secret:name} references
// instead of raw upstream keys.
//
// A Manager chains providers in configuration order; the first one
// that claims a name and returns a value wins, and results sit in a
// TTL cache. Two providers are fully implemented:
//
//   - env: APERTURE_SECRET_*-style environment variables.
//   - file: one-file-per-secret directories (Kubernetes secret
//     mounts), permission-checked and optionally fsnotify-watched so
//     rotation takes effect without a restart.
//
// The aws_kms, gcp_kms, and vault providers are recognized
// configuration shapes that decline every lookup until a real client
// is wired behind them.
//
// The proxy pipeline calls Manager.ResolveReferences on each selected
// key's secret material during header rewrite; strings without
// references pass through untouched.
package secrets
