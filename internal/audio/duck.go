package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeStep struct {
	id   int
	from int
	to   int
}

// pactlFunc runs pactl with args and returns its stdout.
type pactlFunc func(ctx context.Context, args ...string) ([]byte, error)

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers the volume of other applications while the assistant
// talks and restores it afterwards. Streams whose application.name is in
// selfNames are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string
	original  map[int]int // sink input id -> volume before ducking
	minVolume int
	pactl     pactlFunc
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	return newDucker(selfNames, minVolume, runPactl)
}

func newDucker(selfNames []string, minVolume int, run pactlFunc) *Ducker {
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		original:  make(map[int]int),
		minVolume: clampVolume(minVolume),
		pactl:     run,
	}
}

// Duck fades every foreign stream to factor of its volume, not below the
// minimum volume. Calling it while already ducked is a no-op.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var steps []fadeStep
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}
		target := math.Max(float64(in.Volume)*factor, float64(d.minVolume))
		d.original[in.ID] = in.Volume
		steps = append(steps, fadeStep{id: in.ID, from: in.Volume, to: clampVolume(int(math.Round(target)))})
	}

	if err := d.fade(ctx, steps, fade); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Unduck fades the streams ducked earlier back to their volume. Streams
// that appeared after Duck are ignored.
func (d *Ducker) Unduck(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var steps []fadeStep
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.isSelf(in) {
			continue
		}
		steps = append(steps, fadeStep{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.fade(ctx, steps, fade); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.selfNames {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clampVolume(percent)))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// fade moves all steps linearly to their targets in 10ms increments.
func (d *Ducker) fade(ctx context.Context, steps []fadeStep, dur time.Duration) error {
	if len(steps) == 0 {
		return nil
	}

	const tick = 10 * time.Millisecond

	n := int(dur / tick)
	if n < 1 {
		n = 1
	}

	for i := 1; i <= n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frac := float64(i) / float64(n)
		for _, s := range steps {
			v := float64(s.from) + float64(s.to-s.from)*frac
			if err := d.setVolume(ctx, s.id, int(math.Round(v))); err != nil {
				return err
			}
		}

		if i < n {
			time.Sleep(dur / time.Duration(n))
		}
	}
	return nil
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			switch {
			case strings.HasPrefix(line, "Volume:") && in.Volume == 0:
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && in.AppName == "":
				// application.name = "Firefox"
				if _, rest, ok := strings.Cut(line, `"`); ok {
					in.AppName, _, _ = strings.Cut(rest, `"`)
				}
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxVolume {
		return maxVolume
	}
	return v
}
