// Package logging wraps log/slog for the gateway: structured JSON or
// text output, credential/PII redaction applied at the handler level,
// and an asynchronous write path so a slow sink never stalls a proxied
// request.
//
// The CLI installs the wrapped logger as the process default:
//
//	tlog, err := logging.New(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	slog.SetDefault(tlog.SlogLogger())
//
// After that, every component logging through slog.Default() gets
// redaction for free:
//
//	slog.Info("key selected", "api_key", "sk-abc123")   // logs api_key=sk-a***
//
// Redaction has two layers: attribute keys that name a secret
// (token, api_key, authorization, ...) are masked outright, and string
// values under any key are scrubbed against a pattern set (sk- keys,
// Bearer tokens, emails, IPv4 addresses). Custom patterns come from
// telemetry.logging.redact_patterns in the config file.
//
// Context helpers (WithRequestID, WithTenant, ...) stamp the gateway's
// request-scoped fields onto a context.Context; Logger.WithContext
// folds whichever are present into the logger's fields.
package logging
