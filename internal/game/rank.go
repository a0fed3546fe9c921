package game

import (
	"go.uber.org/zap"

	"emberhold.gg/internal/profile"
)

// Rank tiers by accumulated playtime.
const (
	RankNewcomer = "newcomer"
	RankRegular  = "regular"
	RankVeteran  = "veteran"
	RankElder    = "elder"
)

const (
	regularPlaytimeSecs = 10 * 60 * 60
	veteranPlaytimeSecs = 100 * 60 * 60
	elderPlaytimeSecs   = 1000 * 60 * 60
)

func rankForPlaytime(secs int64) string {
	switch {
	case secs >= elderPlaytimeSecs:
		return RankElder
	case secs >= veteranPlaytimeSecs:
		return RankVeteran
	case secs >= regularPlaytimeSecs:
		return RankRegular
	default:
		return RankNewcomer
	}
}

// RankInitializer derives the session rank from durable playtime. Operators
// keep whatever rank they carry.
func RankInitializer(log *zap.Logger) func(*profile.Profile) {
	return func(p *profile.Profile) {
		if p.Record.Flags.Operator && p.State.Rank != "" {
			return
		}
		derived := rankForPlaytime(p.Record.PlaytimeSecs)
		if p.State.Rank != derived {
			log.Debug("rank derived",
				zap.String("id", p.ID),
				zap.String("rank", derived))
			p.State.Rank = derived
		}
	}
}
