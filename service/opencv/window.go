package opencv

import (
	"image"
	"sync"

	"go.uber.org/atomic"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vs-sentry/service/live"
)

const (
	keyQuit   = 'q'
	keyEscape = 27
)

// Window shows frames in a desktop window. Pressing q or ESC in the window
// raises its stop signal.
type Window struct {
	window  *gocv.Window
	stopped *atomic.Bool
	mu      sync.Mutex
}

var _ live.IService = (*Window)(nil)

func NewWindow(title string) *Window {
	return &Window{
		window:  gocv.NewWindow(title),
		stopped: atomic.NewBool(false),
	}
}

func (w *Window) Emit(frame image.Image) error {
	mat, err := toMat(frame)
	defer mat.Close()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.window == nil {
		return nil
	}

	w.window.IMShow(mat)
	key := w.window.WaitKey(1) & 0xFF
	if key == keyQuit || key == keyEscape {
		w.stopped.Store(true)
	}
	return nil
}

func (w *Window) Stopped() bool {
	return w.stopped.Load()
}

func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.window == nil {
		return nil
	}

	err := w.window.Close()
	w.window = nil
	return err
}
