package credstore

const (
	// keyPrefixToken is the prefix for per-provider token sets.
	keyPrefixToken = "upnext:token:"
	// keySettings holds the persisted engine settings.
	keySettings = "upnext:settings"
)

// tokenKey returns the Redis key for a provider's token set.
func tokenKey(providerID string) string {
	return keyPrefixToken + providerID
}
