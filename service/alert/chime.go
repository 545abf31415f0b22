package alert

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

const (
	chimeFile       = "vs-sentry-chime.wav"
	chimeSampleRate = 22050
	chimeBitDepth   = 16
	chimeAmplitude  = 0.4
	wavFormatPCM    = 1
)

// note is one tone of the chime.
type note struct {
	freq    float64
	seconds float64
}

// A short rising two-note chime.
var chimeNotes = []note{
	{freq: 1046.50, seconds: 0.12},
	{freq: 1318.51, seconds: 0.22},
}

type chimeService struct {
	wavPath string
	player  string
	bell    IService
}

// NewChime renders the chime into cacheDir (once) and plays it with the first
// of players found on PATH. Without a usable player it rings the terminal
// bell on out instead.
func NewChime(cacheDir string, players []string, out io.Writer) (IService, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, xerrors.Errorf("creating chime cache %s: %w", cacheDir, err)
	}

	wavPath := filepath.Join(cacheDir, chimeFile)
	if _, err := os.Stat(wavPath); err != nil {
		if err := writeChime(wavPath); err != nil {
			return nil, err
		}
	}

	svc := &chimeService{
		wavPath: wavPath,
		bell:    NewBell(out),
	}

	for _, p := range players {
		if path, err := exec.LookPath(p); err == nil {
			svc.player = path
			break
		}
	}

	if svc.player == "" {
		lgr.Logger.Warn(
			"no audio player found, falling back to the terminal bell",
			slog.Any("players", players),
		)
	}

	return svc, nil
}

func (svc *chimeService) Notify(ctx context.Context, t model.Transition) error {
	if svc.player == "" {
		return svc.bell.Notify(ctx, t)
	}

	out, err := exec.CommandContext(ctx, svc.player, svc.wavPath).CombinedOutput()
	if err != nil {
		// still let the operator know
		_ = svc.bell.Notify(ctx, t)
		return xerrors.Errorf("playing chime with %s: %w (%s)", svc.player, err, string(out))
	}
	return nil
}

func writeChime(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return xerrors.Errorf("creating chime file: %w", err)
	}
	defer os.Remove(tmp)

	enc := wav.NewEncoder(f, chimeSampleRate, chimeBitDepth, 1, wavFormatPCM)
	if err := enc.Write(synthesize(chimeNotes)); err != nil {
		f.Close()
		return xerrors.Errorf("encoding chime: %w", err)
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return xerrors.Errorf("finalizing chime: %w", err)
	}

	if err := f.Close(); err != nil {
		return xerrors.Errorf("closing chime file: %w", err)
	}

	return os.Rename(tmp, path)
}

// synthesize renders the notes back to back as 16-bit mono PCM. Each note
// decays exponentially so consecutive tones do not click.
func synthesize(notes []note) *audio.IntBuffer {
	peak := float64(int(1)<<(chimeBitDepth-1)-1) * chimeAmplitude

	data := []int{}
	for _, n := range notes {
		samples := int(n.seconds * chimeSampleRate)
		for i := 0; i < samples; i++ {
			at := float64(i) / chimeSampleRate
			envelope := math.Exp(-4 * at / n.seconds)
			data = append(data, int(peak*envelope*math.Sin(2*math.Pi*n.freq*at)))
		}
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  chimeSampleRate,
		},
		Data:           data,
		SourceBitDepth: chimeBitDepth,
	}
}
