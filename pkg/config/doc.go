// Package config loads the billing engine configuration from BILLING_*
// environment variables.
//
// Server:
//
//	BILLING_HOST="0.0.0.0"
//	BILLING_PORT="8080"
//	BILLING_HEALTH_PORT="9090"
//	BILLING_ALLOWED_ORIGINS="https://app.example.com"
//
// Storage and sequence:
//
//	BILLING_STORAGE_TYPE="postgres"      # memory, postgres
//	BILLING_POSTGRES_URL="postgres://localhost/billing?sslmode=disable"
//	BILLING_POSTGRES_REPLICA_URLS="postgres://replica1/billing"
//	BILLING_SEQUENCE_BACKEND="redis"     # memory, redis, postgres, sqlite
//	BILLING_REDIS_URL="redis://localhost:6379"
//	BILLING_SQLITE_PATH="/var/lib/billing/sequence.db"
//
// Documents:
//
//	BILLING_DOCUMENT_ARCHIVE="s3"        # none, filesystem, s3
//	BILLING_S3_BUCKET="invoices"
//	BILLING_DOCUMENT_CACHE_ENTRIES="256"
//
// Notifications (a channel without an endpoint is disabled):
//
//	BILLING_SMTP_HOST="smtp.example.com"
//	BILLING_SMTP_FROM="billing@example.com"
//	BILLING_MESSAGING_URL="https://messaging.example.com/send"
//	BILLING_MESSAGING_SECRET="..."
//	BILLING_TEMPLATES_PATH="/etc/billing/templates.yaml"
//
// Invoicing:
//
//	BILLING_INVOICE_PREFIX="INV"
//	BILLING_TIMEZONE="Asia/Kolkata"
//	BILLING_DEFAULT_GST_PERCENTAGE="18"
//	BILLING_DEFAULT_DUE_DAYS="15"
//	BILLING_FISCAL_YEAR_START_MONTH="4"
//
// Overdue sweep:
//
//	BILLING_SWEEP_SCHEDULE="15 0 * * *"
//	BILLING_SWEEP_CONCURRENCY="4"
//
// Observability:
//
//	BILLING_LOG_LEVEL="info"
//	BILLING_OTEL_ENABLED="true"
//	BILLING_OTEL_ENDPOINT="otel-collector:4317"
//
// LoadConfig validates the result; invalid combinations, such as a memory
// sequence with postgres storage, fail at startup.
package config
