package anthropic

// CachedSystem returns a single system block marked for prompt caching.
// Prompts shared by every question of a run (instructions, code tables) go
// here so repeated calls read them from cache. ttl is "5m" or "1h"; empty
// uses the API default.
func CachedSystem(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: ttl},
	}}
}
