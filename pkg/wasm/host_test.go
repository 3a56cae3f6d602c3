package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/camia/aviation/pkg/aviation"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/units"
)

// divModule exports div(f64, f64) f64.
var divModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7c, 0x7c, 0x01, 0x7c,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x64, 0x69, 0x76, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0xa3, 0x0b,
}

// idModule exports id(i32) i32.
var idModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x06, 0x01, 0x02, 0x69, 0x64, 0x00, 0x00,
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x20, 0x00, 0x0b,
}

// spinModule exports spin() f64, which never returns.
var spinModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7c,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x08, 0x01, 0x04, 0x73, 0x70, 0x69, 0x6e, 0x00, 0x00,
	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x00, 0x0b,
}

const passengersPerDayManifest = `
module: div.wasm
transforms:
  - name: passengers_per_day
    export: div
    parameters: [passengers_per_year, days_per_year]
    description: Daily passengers from a WASM module.
`

func newTestHost(t *testing.T, cfg *Config) *Host {
	t.Helper()
	h, err := NewHost(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func mustManifest(t *testing.T, src string) *Manifest {
	t.Helper()
	m, err := ParseManifest([]byte(src))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	return m
}

func TestHost_PlainNumbers(t *testing.T) {
	h := newTestHost(t, nil)
	transforms, err := h.Load(context.Background(), mustManifest(t, passengersPerDayManifest), divModule)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(transforms) != 1 {
		t.Fatalf("got %d transforms, want 1", len(transforms))
	}

	tr := transforms[0]
	if tr.Name() != aviation.NamePassengersPerDay || tr.Description() != "Daily passengers from a WASM module." {
		t.Errorf("transform = %s (%q)", tr.Name(), tr.Description())
	}

	model, err := engine.New([]*engine.Transform{tr})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	value, err := model.Evaluate(map[string]interface{}{
		aviation.NamePassengersPerYear: 730,
		aviation.NameDaysPerYear:       365.0,
	}, aviation.NamePassengersPerDay)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if value != 2.0 {
		t.Errorf("passengers_per_day = %#v, want 2.0", value)
	}
}

func TestHost_Quantities(t *testing.T) {
	h := newTestHost(t, nil)
	m := mustManifest(t, `
module: div.wasm
transforms:
  - name: seats_per_flight
    export: div
    parameters: [passengers, flights]
    units:
      passengers: passenger/day
      flights: journey/day
    result: passenger/journey
`)
	transforms, err := h.Load(context.Background(), m, divModule)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tr := transforms[0]
	if got := tr.Signature(); got != "seats_per_flight(passengers [passenger/day], flights [journey/day]) -> passenger/journey" {
		t.Errorf("Signature() = %q", got)
	}

	value, err := tr.Invoke(context.Background(), map[string]interface{}{
		"passengers": units.Q(300, units.MustParse("passenger/day")),
		"flights":    units.Q(2, units.MustParse("journey/day")),
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := units.Q(150, units.MustParse("passenger/journey"))
	if q, ok := value.(units.Quantity); !ok || !q.ApproxEqual(want, 0) {
		t.Errorf("seats_per_flight = %v, want %v", value, want)
	}

	bad := []map[string]interface{}{
		{"passengers": units.Q(300, units.MustParse("passenger/year")), "flights": 2.0},
		{"passengers": "many", "flights": 2.0},
	}
	for _, args := range bad {
		if _, err := tr.Invoke(context.Background(), args); !engine.IsArgumentBinding(err) {
			t.Errorf("Invoke(%v) error = %v, want argument binding error", args, err)
		}
	}
}

func TestHost_UnannotatedQuantityRejected(t *testing.T) {
	h := newTestHost(t, nil)
	transforms, err := h.Load(context.Background(), mustManifest(t, passengersPerDayManifest), divModule)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_, err = transforms[0].Invoke(context.Background(), map[string]interface{}{
		aviation.NamePassengersPerYear: units.Q(730, units.MustParse("passenger/year")),
		aviation.NameDaysPerYear:       365.0,
	})
	if !engine.IsArgumentBinding(err) {
		t.Errorf("Invoke() error = %v, want argument binding error", err)
	}
}

func TestHost_LoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		module   []byte
		wantErr  string
	}{
		{
			name:     "missing export",
			manifest: "module: m.wasm\ntransforms: [{name: x, export: mul, parameters: [a, b]}]\n",
			module:   divModule,
			wantErr:  "does not export",
		},
		{
			name:     "arity mismatch",
			manifest: "module: m.wasm\ntransforms: [{name: x, export: div, parameters: [a]}]\n",
			module:   divModule,
			wantErr:  "takes 2 parameters",
		},
		{
			name:     "integer signature",
			manifest: "module: m.wasm\ntransforms: [{name: id, parameters: [a]}]\n",
			module:   idModule,
			wantErr:  "must be f64",
		},
		{
			name:     "not wasm",
			manifest: "module: m.wasm\ntransforms: [{name: x, parameters: []}]\n",
			module:   []byte("not a module"),
			wantErr:  "failed to compile",
		},
		{
			name:     "checksum mismatch",
			manifest: "module: m.wasm\nchecksum: \"" + strings.Repeat("0", 64) + "\"\ntransforms: [{name: div, parameters: [a, b]}]\n",
			module:   divModule,
			wantErr:  "checksum mismatch",
		},
		{
			name:     "bad unit",
			manifest: "module: m.wasm\ntransforms: [{name: div, parameters: [a, b], result: a//b}]\n",
			module:   divModule,
			wantErr:  "result",
		},
	}

	h := newTestHost(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Load(context.Background(), mustManifest(t, tt.manifest), tt.module)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"no module", "transforms: [{name: x}]\n"},
		{"no transforms", "module: m.wasm\n"},
		{"unnamed transform", "module: m.wasm\ntransforms: [{export: div}]\n"},
		{"duplicate transform", "module: m.wasm\ntransforms: [{name: x}, {name: x}]\n"},
		{"short checksum", "module: m.wasm\nchecksum: abc\ntransforms: [{name: x}]\n"},
		{"malformed", "module: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.manifest)); err == nil {
				t.Error("ParseManifest() expected error")
			}
		})
	}
}

func TestHost_LoadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "div.wasm"), divModule, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(divModule)
	manifest := passengersPerDayManifest + "checksum: \"" + hex.EncodeToString(sum[:]) + "\"\n"
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newTestHost(t, nil)
	transforms, err := h.LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	value, err := transforms[0].Invoke(context.Background(), map[string]interface{}{
		aviation.NamePassengersPerYear: 3650.0,
		aviation.NameDaysPerYear:       365.0,
	})
	if err != nil || value != 10.0 {
		t.Errorf("Invoke() = %v, %v, want 10", value, err)
	}

	// A WASM passengers_per_day clashes with the catalogue's.
	if _, err := aviation.NewModel(transforms); !engine.IsDuplicateTransform(err) {
		t.Errorf("NewModel() error = %v, want duplicate transform", err)
	}
}

func TestHost_Timeout(t *testing.T) {
	h := newTestHost(t, &Config{Timeout: 100 * time.Millisecond})
	transforms, err := h.Load(context.Background(),
		mustManifest(t, "module: spin.wasm\ntransforms: [{name: spin, parameters: []}]\n"), spinModule)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := transforms[0].Invoke(context.Background(), nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Invoke() expected timeout error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("spin did not stop at the timeout")
	}
}

func TestHost_ConcurrentCalls(t *testing.T) {
	h := newTestHost(t, nil)
	transforms, err := h.Load(context.Background(), mustManifest(t, passengersPerDayManifest), divModule)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(n float64) {
			defer wg.Done()
			v, err := transforms[0].Invoke(context.Background(), map[string]interface{}{
				aviation.NamePassengersPerYear: n * 365,
				aviation.NameDaysPerYear:       365.0,
			})
			if err == nil && v != n {
				err = errors.New("wrong result")
			}
			errs <- err
		}(float64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}
