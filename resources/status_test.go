package resources

import (
	"sync"
	"testing"

	"github.com/grundic/browser-notifier/permission"
	"github.com/stretchr/testify/assert"
)

func TestStatusBoardStartsWithHiddenControls(t *testing.T) {
	board := NewStatusBoard()

	snapshot := board.Snapshot()
	assert.Empty(t, snapshot.Icon)
	assert.Empty(t, snapshot.Text)
	assert.Equal(t, map[string]bool{permission.RequestControl: false, permission.TestControl: false}, snapshot.Controls)
}

func TestStatusBoardSnapshotIsACopy(t *testing.T) {
	board := NewStatusBoard()
	board.SetStatus("/img/a.png", "some text")
	board.SetControlVisible(permission.TestControl, true)

	snapshot := board.Snapshot()
	snapshot.Controls[permission.TestControl] = false

	again := board.Snapshot()
	assert.Equal(t, "/img/a.png", again.Icon)
	assert.Equal(t, "some text", again.Text)
	assert.True(t, again.Controls[permission.TestControl])
}

func TestStatusBoardConcurrentUpdates(t *testing.T) {
	board := NewStatusBoard()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(visible bool) {
			defer wg.Done()
			board.SetControlVisible(permission.RequestControl, visible)
			board.SetStatus("icon", "text")
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = board.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, "text", board.Snapshot().Text)
}
