package alert

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vs-sentry/model"
)

type bellService struct {
	out io.Writer
	mu  sync.Mutex
}

// NewBell rings the terminal bell and prints a highlighted line to out.
func NewBell(out io.Writer) IService {
	return &bellService{
		out: out,
	}
}

func (svc *bellService) Notify(_ context.Context, t model.Transition) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, err := io.WriteString(svc.out, "\a"); err != nil {
		return err
	}

	_, err := color.New(color.FgHiRed, color.Bold).Fprintf(svc.out,
		"[%s] occupancy rose %d -> %d on camera %s\n",
		time.UnixMilli(t.Timestamp).Format(time.TimeOnly),
		t.Previous,
		t.Current,
		t.Camera,
	)
	return err
}
