package game

import "emberhold.gg/internal/profile"

// SocialInitializer seeds default social tags and resets transient flags.
// Runs on the host loop right after load, before any host event can touch
// the profile.
func SocialInitializer() func(*profile.Profile) {
	return func(p *profile.Profile) {
		if len(p.State.Tags) == 0 {
			p.State.Tags = []string{"newcomer"}
		}
		p.State.AFK = false
	}
}
