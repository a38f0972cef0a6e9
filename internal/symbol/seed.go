package symbol

// Seed registers the handful of names the relay itself depends on before any
// game-asset manifest is loaded, so the server is runnable standalone. A real
// deployment loads a much larger manifest over this with LoadManifest; Add
// rejects conflicting re-registration, so a seeded name stays pinned even if
// the manifest repeats it with the same value.
func Seed(c *Cache) {
	for _, name := range []string{
		"login_settings",
		"channel.global",
		"channel.team",
		"eula",
		"privacy",
		"en",
		"region.na",
		"region.eu",
		"region.ap",
	} {
		c.AddHashed(name)
	}
}
