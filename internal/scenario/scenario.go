// Package scenario describes scripted input sessions for the PS/2 drivers.
// A scenario is a YAML document listing keyboard and mouse activity and the
// state the drivers are expected to reach once it has been replayed on a
// simulated machine.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a complete replay script.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// CmdLine holds boot command line overrides such as mouse.grid.
	CmdLine map[string]string `yaml:"cmdline"`

	Steps  []Step      `yaml:"steps"`
	Expect Expectation `yaml:"expect"`
}

// Step is a single input action. Exactly one field must be set.
type Step struct {
	// Type taps the keys producing the given text. Upper-case letters
	// are wrapped in a left shift press and release.
	Type string `yaml:"type,omitempty"`

	// Key taps a raw set-1 scancode.
	Key *uint8 `yaml:"key,omitempty"`

	Press   *uint8 `yaml:"press,omitempty"`
	Release *uint8 `yaml:"release,omitempty"`

	Mouse *MouseMove `yaml:"mouse,omitempty"`

	// AuxBytes queues raw bytes on the aux port.
	AuxBytes []uint8 `yaml:"aux_bytes,omitempty"`

	// SpuriousMouse raises IRQ12 without any aux data.
	SpuriousMouse bool `yaml:"spurious_mouse,omitempty"`

	// Ticks raises the timer interrupt the given number of times.
	Ticks int `yaml:"ticks,omitempty"`
}

// MouseMove is a relative pointer movement. Positive DY moves up.
type MouseMove struct {
	DX      int   `yaml:"dx"`
	DY      int   `yaml:"dy"`
	Buttons uint8 `yaml:"buttons"`
}

// Point is a pointer grid position.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Expectation lists the checks applied after replay. Unset fields are not
// checked.
type Expectation struct {
	Pointer  *Point  `yaml:"pointer,omitempty"`
	Text     *string `yaml:"text,omitempty"`
	LEDs     *uint8  `yaml:"leds,omitempty"`
	Resyncs  *int    `yaml:"resyncs,omitempty"`
	Spurious *int    `yaml:"spurious,omitempty"`
	Ticks    *uint64 `yaml:"ticks,omitempty"`
}

var (
	ErrNoSteps     = errors.New("scenario has no steps")
	ErrEmptyStep   = errors.New("step has no action")
	ErrAmbiguous   = errors.New("step sets more than one action")
	ErrUntypeable  = errors.New("text contains a character with no key")
	ErrNegativeRun = errors.New("ticks must not be negative")
)

// Load reads and validates the scenario stored at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario document. Unknown fields are
// rejected so that typos do not silently disable a step.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoSteps
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step carries exactly one action.
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return ErrNoSteps
	}

	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	var actions int
	for _, set := range []bool{
		st.Type != "",
		st.Key != nil,
		st.Press != nil,
		st.Release != nil,
		st.Mouse != nil,
		len(st.AuxBytes) != 0,
		st.SpuriousMouse,
		st.Ticks != 0,
	} {
		if set {
			actions++
		}
	}

	switch {
	case actions == 0:
		return ErrEmptyStep
	case actions > 1:
		return ErrAmbiguous
	case st.Ticks < 0:
		return ErrNegativeRun
	}

	for i := 0; i < len(st.Type); i++ {
		if _, _, ok := ScancodeFor(st.Type[i]); !ok {
			return fmt.Errorf("%w: %q", ErrUntypeable, st.Type[i])
		}
	}
	return nil
}

// Marshal encodes s as YAML.
func (s *Scenario) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
