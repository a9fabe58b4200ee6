package resources

import (
	"sync"

	"github.com/grundic/browser-notifier/permission"
)

// StatusBoard holds what the settings page displays about notifications.
type StatusBoard struct {
	lock     *sync.RWMutex
	icon     string
	text     string
	controls map[string]bool
}

// StatusSnapshot is the JSON representation of a StatusBoard.
type StatusSnapshot struct {
	State    permission.State `json:"state,omitempty"`
	Icon     string           `json:"icon"`
	Text     string           `json:"text"`
	Controls map[string]bool  `json:"controls"`
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		lock: &sync.RWMutex{},
		controls: map[string]bool{
			permission.RequestControl: false,
			permission.TestControl:    false,
		},
	}
}

func (b *StatusBoard) SetStatus(icon, text string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.icon = icon
	b.text = text
}

func (b *StatusBoard) SetControlVisible(id string, visible bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.controls[id] = visible
}

func (b *StatusBoard) Snapshot() StatusSnapshot {
	b.lock.RLock()
	defer b.lock.RUnlock()

	controls := make(map[string]bool, len(b.controls))
	for id, visible := range b.controls {
		controls[id] = visible
	}
	return StatusSnapshot{
		Icon:     b.icon,
		Text:     b.text,
		Controls: controls,
	}
}
