package common

// SyncTokenHeaderName is the HTTP header that carries the password-derived
// token on requests to the remote sync store.
const SyncTokenHeaderName = "X-Sync-Token"

// CorruptValueSentinel is the string a broken upstream serializer produces
// instead of structured data. A stored or transmitted value equal to it is
// treated as corrupted and discarded, never parsed.
const CorruptValueSentinel = "[object Object]"

// Well-known keys of the local durable key-value store.
const (
	KeyAccounts      = "accounts"
	KeyAccountKeys   = "account_keys"
	KeyLibrary       = "library"
	KeyFailoverRules = "failover_rules"
	KeyWebhookConfig = "webhook_config"
	KeySalt          = "salt"
	KeyPasswordHash  = "password_hash"
	KeyLastSynced    = "last_synced"
)
