package coordinator

import (
	"sync"

	"go.uber.org/zap"

	"emberhold.gg/internal/profile"
)

// LoadListener observes the load pipeline. Embed NoopLoadListener to
// implement only the callbacks you care about.
type LoadListener interface {
	ProfileLoaded(p *profile.Profile)
	LoadFailed(subjectID string, err error)
	LoadTimedOut(subjectID string)
}

type NoopLoadListener struct{}

func (NoopLoadListener) ProfileLoaded(*profile.Profile) {}
func (NoopLoadListener) LoadFailed(string, error)       {}
func (NoopLoadListener) LoadTimedOut(string)            {}

// SaveListener observes the save pipeline.
type SaveListener interface {
	ProfileSaved(rec *profile.Record)
	SaveFailed(subjectID string, err error)
}

type NoopSaveListener struct{}

func (NoopSaveListener) ProfileSaved(*profile.Record) {}
func (NoopSaveListener) SaveFailed(string, error)     {}

// listenerBus fans events out to independent subscribers. A panicking
// listener is contained and logged; it never takes down the pipeline.
type listenerBus struct {
	log *zap.Logger

	mu   sync.RWMutex
	load []LoadListener
	save []SaveListener
}

func (b *listenerBus) addLoad(l LoadListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.load = append(b.load, l)
	b.mu.Unlock()
}

func (b *listenerBus) removeLoad(l LoadListener) {
	b.mu.Lock()
	for i, cur := range b.load {
		if cur == l {
			b.load = append(b.load[:i], b.load[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

func (b *listenerBus) addSave(l SaveListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.save = append(b.save, l)
	b.mu.Unlock()
}

func (b *listenerBus) removeSave(l SaveListener) {
	b.mu.Lock()
	for i, cur := range b.save {
		if cur == l {
			b.save = append(b.save[:i], b.save[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

func (b *listenerBus) loadListeners() []LoadListener {
	b.mu.RLock()
	out := append([]LoadListener(nil), b.load...)
	b.mu.RUnlock()
	return out
}

func (b *listenerBus) saveListeners() []SaveListener {
	b.mu.RLock()
	out := append([]SaveListener(nil), b.save...)
	b.mu.RUnlock()
	return out
}

func (b *listenerBus) notifyLoaded(p *profile.Profile) {
	for _, l := range b.loadListeners() {
		b.invoke(func() { l.ProfileLoaded(p) })
	}
}

func (b *listenerBus) notifyLoadFailed(id string, err error) {
	for _, l := range b.loadListeners() {
		b.invoke(func() { l.LoadFailed(id, err) })
	}
}

func (b *listenerBus) notifyLoadTimedOut(id string) {
	for _, l := range b.loadListeners() {
		b.invoke(func() { l.LoadTimedOut(id) })
	}
}

func (b *listenerBus) notifySaved(rec *profile.Record) {
	for _, l := range b.saveListeners() {
		b.invoke(func() { l.ProfileSaved(rec) })
	}
}

func (b *listenerBus) notifySaveFailed(id string, err error) {
	for _, l := range b.saveListeners() {
		b.invoke(func() { l.SaveFailed(id, err) })
	}
}

func (b *listenerBus) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
