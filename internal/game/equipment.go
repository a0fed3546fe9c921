package game

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"emberhold.gg/internal/coordinator"
	"emberhold.gg/internal/profile"
)

// Equipment bonuses. Unknown items contribute nothing.
var weaponAttack = map[string]int{
	"wooden_sword": 2,
	"iron_sword":   4,
	"ember_blade":  7,
}

var armorDefense = map[string]int{
	"leather_cap":    1,
	"leather_tunic":  2,
	"iron_helm":      2,
	"iron_plate":     4,
	"ember_carapace": 6,
}

// StatRecalcListener recomputes equipment-derived stats when a profile
// loads. Recalculations are rate-limited per profile and item handlers are
// panic-contained, so a bad item definition degrades one recalc instead of
// the load pipeline.
type StatRecalcListener struct {
	coordinator.NoopLoadListener

	log      *zap.Logger
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func NewStatRecalcListener(log *zap.Logger, cooldown time.Duration) *StatRecalcListener {
	if cooldown <= 0 {
		cooldown = time.Second
	}
	return &StatRecalcListener{
		log:      log,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

func (l *StatRecalcListener) ProfileLoaded(p *profile.Profile) {
	l.Recalc(p)
}

// Recalc applies equipment bonuses on top of base stats. Returns false when
// skipped by the cooldown.
func (l *StatRecalcListener) Recalc(p *profile.Profile) bool {
	if p == nil {
		return false
	}
	now := time.Now()
	l.mu.Lock()
	if t, ok := l.last[p.ID]; ok && now.Sub(t) < l.cooldown {
		l.mu.Unlock()
		return false
	}
	l.last[p.ID] = now
	l.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("stat recalc panicked",
				zap.String("id", p.ID), zap.Any("panic", r))
		}
	}()

	attack := 1 + weaponAttack[p.State.Equipment.MainHand]
	defense := 0
	for _, piece := range p.State.Equipment.Armor {
		if piece == "" {
			continue
		}
		defense += armorDefense[piece]
	}
	p.State.Attack = attack
	p.State.Defense = defense
	return true
}

// Forget drops cooldown state for a departed session; wire it to a save
// listener or call from the disconnect path.
func (l *StatRecalcListener) Forget(id string) {
	l.mu.Lock()
	delete(l.last, id)
	l.mu.Unlock()
}
