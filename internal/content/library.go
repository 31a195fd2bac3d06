package content

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Library is the on-disk document a FileProvider reads. Programs and
// instruments nest their children so a library can be written by hand.
type Library struct {
	Version     int             `yaml:"version"`
	Templates   []TemplateDoc   `yaml:"templates" validate:"dive"`
	Programs    []ProgramDoc    `yaml:"programs" validate:"dive"`
	Instruments []InstrumentDoc `yaml:"instruments" validate:"dive"`
}

type TemplateDoc struct {
	ID          string   `yaml:"id" validate:"required"`
	Key         string   `yaml:"key" validate:"required"`
	Name        string   `yaml:"name"`
	Programs    []string `yaml:"programs"`
	Instruments []string `yaml:"instruments"`
}

type ProgramDoc struct {
	ID        string        `yaml:"id" validate:"required"`
	Type      ProgramType   `yaml:"type" validate:"required,oneof=Macro Main Beat Detail"`
	State     State         `yaml:"state" validate:"omitempty,oneof=Published Draft"`
	Name      string        `yaml:"name"`
	Key       string        `yaml:"key"`
	Tempo     float64       `yaml:"tempo" validate:"gte=0"`
	Config    ProgramConfig `yaml:"config"`
	Memes     []string      `yaml:"memes"`
	Voices    []VoiceDoc    `yaml:"voices" validate:"dive"`
	Sequences []SequenceDoc `yaml:"sequences" validate:"dive"`
	Bindings  []BindingDoc  `yaml:"bindings" validate:"dive"`
}

type VoiceDoc struct {
	ID     string     `yaml:"id" validate:"required"`
	Type   string     `yaml:"type" validate:"required"`
	Name   string     `yaml:"name" validate:"required"`
	Order  float64    `yaml:"order"`
	Tracks []TrackDoc `yaml:"tracks" validate:"dive"`
}

type TrackDoc struct {
	ID    string  `yaml:"id" validate:"required"`
	Name  string  `yaml:"name" validate:"required"`
	Order float64 `yaml:"order"`
}

type SequenceDoc struct {
	ID        string       `yaml:"id" validate:"required"`
	Name      string       `yaml:"name"`
	Key       string       `yaml:"key"`
	Total     int          `yaml:"total" validate:"gte=0"`
	Intensity float64      `yaml:"intensity" validate:"gte=0,lte=1"`
	Chords    []ChordDoc   `yaml:"chords" validate:"dive"`
	Patterns  []PatternDoc `yaml:"patterns" validate:"dive"`
}

type ChordDoc struct {
	ID       string            `yaml:"id" validate:"required"`
	Name     string            `yaml:"name" validate:"required"`
	Position float64           `yaml:"position" validate:"gte=0"`
	Voicings map[string]string `yaml:"voicings"`
}

type PatternDoc struct {
	ID     string     `yaml:"id" validate:"required"`
	Voice  string     `yaml:"voice" validate:"required"`
	Name   string     `yaml:"name"`
	Total  int        `yaml:"total" validate:"gte=0"`
	Events []EventDoc `yaml:"events" validate:"dive"`
}

type EventDoc struct {
	ID       string  `yaml:"id"`
	Track    string  `yaml:"track" validate:"required"`
	Position float64 `yaml:"position" validate:"gte=0"`
	Duration float64 `yaml:"duration" validate:"gte=0"`
	Velocity float64 `yaml:"velocity" validate:"gte=0,lte=1"`
	Tones    string  `yaml:"tones"`
}

type BindingDoc struct {
	ID       string   `yaml:"id" validate:"required"`
	Sequence string   `yaml:"sequence" validate:"required"`
	Offset   int      `yaml:"offset" validate:"gte=0"`
	Memes    []string `yaml:"memes"`
}

type InstrumentDoc struct {
	ID     string           `yaml:"id" validate:"required"`
	Type   string           `yaml:"type" validate:"required"`
	Mode   InstrumentMode   `yaml:"mode" validate:"omitempty,oneof=Event Chord Loop"`
	State  State            `yaml:"state" validate:"omitempty,oneof=Published Draft"`
	Name   string           `yaml:"name"`
	Volume float64          `yaml:"volume" validate:"gte=0"`
	Config InstrumentConfig `yaml:"config"`
	Memes  []string         `yaml:"memes"`
	Audios []AudioDoc       `yaml:"audios" validate:"dive"`
}

type AudioDoc struct {
	ID               string  `yaml:"id" validate:"required"`
	Name             string  `yaml:"name"`
	Event            string  `yaml:"event"`
	Tones            string  `yaml:"tones"`
	Intensity        float64 `yaml:"intensity" validate:"gte=0,lte=1"`
	Volume           float64 `yaml:"volume" validate:"gte=0"`
	Tempo            float64 `yaml:"tempo" validate:"gte=0"`
	TotalBeats       float64 `yaml:"total_beats" validate:"gte=0"`
	TransientSeconds float64 `yaml:"transient_seconds" validate:"gte=0"`
	Waveform         string  `yaml:"waveform"`
}

var validate = validator.New()

// LoadLibrary reads and validates a library document.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", path, err)
	}
	lib, err := ParseLibrary(data)
	if err != nil {
		return nil, fmt.Errorf("content: %s: %w", path, err)
	}
	return lib, nil
}

// ParseLibrary decodes and validates a library document.
func ParseLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse library: %w", err)
	}
	lib.applyDefaults()
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

func (l *Library) applyDefaults() {
	if l.Version == 0 {
		l.Version = 1
	}
	for i := range l.Programs {
		p := &l.Programs[i]
		if p.State == "" {
			p.State = StatePublished
		}
		for j := range p.Sequences {
			for k := range p.Sequences[j].Patterns {
				pat := &p.Sequences[j].Patterns[k]
				for e := range pat.Events {
					if pat.Events[e].ID == "" {
						pat.Events[e].ID = fmt.Sprintf("%s-e%d", pat.ID, e)
					}
				}
			}
		}
	}
	for i := range l.Instruments {
		inst := &l.Instruments[i]
		if inst.State == "" {
			inst.State = StatePublished
		}
		if inst.Mode == "" {
			inst.Mode = ModeEvent
		}
		if inst.Volume == 0 {
			inst.Volume = 1
		}
		for j := range inst.Audios {
			if inst.Audios[j].Volume == 0 {
				inst.Audios[j].Volume = 1
			}
		}
	}
}

// Validate checks struct constraints and cross references. All problems are
// reported together.
func (l *Library) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	var errs []error
	ids := map[string]string{}
	claim := func(kind, id string) {
		if prev, ok := ids[id]; ok {
			errs = append(errs, fmt.Errorf("duplicate id %q (%s and %s)", id, prev, kind))
			return
		}
		ids[id] = kind
	}
	programs := map[string]bool{}
	instruments := map[string]bool{}
	for _, p := range l.Programs {
		claim("program", p.ID)
		programs[p.ID] = true
		voices := map[string]map[string]bool{}
		for _, v := range p.Voices {
			claim("voice", v.ID)
			if _, ok := ParseInstrumentType(v.Type); !ok {
				errs = append(errs, fmt.Errorf("program %s voice %s: unknown instrument type %q", p.ID, v.ID, v.Type))
			}
			tracks := map[string]bool{}
			for _, t := range v.Tracks {
				claim("track", t.ID)
				tracks[t.ID] = true
			}
			voices[v.ID] = tracks
		}
		sequences := map[string]bool{}
		for _, s := range p.Sequences {
			claim("sequence", s.ID)
			sequences[s.ID] = true
			for _, ch := range s.Chords {
				claim("chord", ch.ID)
				for t := range ch.Voicings {
					if _, ok := ParseInstrumentType(t); !ok {
						errs = append(errs, fmt.Errorf("chord %s: unknown voicing type %q", ch.ID, t))
					}
				}
			}
			for _, pat := range s.Patterns {
				claim("pattern", pat.ID)
				tracks, ok := voices[pat.Voice]
				if !ok {
					errs = append(errs, fmt.Errorf("pattern %s: unknown voice %q", pat.ID, pat.Voice))
					continue
				}
				for _, e := range pat.Events {
					claim("event", e.ID)
					if !tracks[e.Track] {
						errs = append(errs, fmt.Errorf("pattern %s event %s: track %q is not on voice %s", pat.ID, e.ID, e.Track, pat.Voice))
					}
				}
			}
		}
		for _, b := range p.Bindings {
			claim("binding", b.ID)
			if !sequences[b.Sequence] {
				errs = append(errs, fmt.Errorf("binding %s: unknown sequence %q", b.ID, b.Sequence))
			}
		}
		if (p.Type == ProgramMain || p.Type == ProgramMacro) && len(p.Bindings) == 0 {
			errs = append(errs, fmt.Errorf("program %s: %s programs need at least one binding", p.ID, p.Type))
		}
	}
	for _, inst := range l.Instruments {
		claim("instrument", inst.ID)
		instruments[inst.ID] = true
		if _, ok := ParseInstrumentType(inst.Type); !ok {
			errs = append(errs, fmt.Errorf("instrument %s: unknown type %q", inst.ID, inst.Type))
		}
		for _, a := range inst.Audios {
			claim("audio", a.ID)
		}
	}
	for _, t := range l.Templates {
		claim("template", t.ID)
		for _, id := range t.Programs {
			if !programs[id] {
				errs = append(errs, fmt.Errorf("template %s: unknown program %q", t.Key, id))
			}
		}
		for _, id := range t.Instruments {
			if !instruments[id] {
				errs = append(errs, fmt.Errorf("template %s: unknown instrument %q", t.Key, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Template finds a template document by key.
func (l *Library) Template(key string) (TemplateDoc, bool) {
	for _, t := range l.Templates {
		if strings.EqualFold(t.Key, key) {
			return t, true
		}
	}
	return TemplateDoc{}, false
}

// Content flattens the whole library.
func (l *Library) Content() Content {
	var c Content
	for _, t := range l.Templates {
		c.Templates = append(c.Templates, Template{
			ID: t.ID, Key: t.Key, Name: t.Name,
			Programs:    append([]string(nil), t.Programs...),
			Instruments: append([]string(nil), t.Instruments...),
		})
	}
	for _, p := range l.Programs {
		p.flatten(&c)
	}
	for _, inst := range l.Instruments {
		inst.flatten(&c)
	}
	return c
}

// Bind flattens only the programs and instruments bound to a template. A
// template with no program list binds every program, likewise instruments.
func (l *Library) Bind(key string) (Content, error) {
	t, ok := l.Template(key)
	if !ok {
		return Content{}, fmt.Errorf("content: unknown template %q", key)
	}
	c := Content{Templates: []Template{{
		ID: t.ID, Key: t.Key, Name: t.Name,
		Programs:    append([]string(nil), t.Programs...),
		Instruments: append([]string(nil), t.Instruments...),
	}}}
	programs := toSet(t.Programs)
	for _, p := range l.Programs {
		if len(programs) == 0 || programs[p.ID] {
			p.flatten(&c)
		}
	}
	instruments := toSet(t.Instruments)
	for _, inst := range l.Instruments {
		if len(instruments) == 0 || instruments[inst.ID] {
			inst.flatten(&c)
		}
	}
	return c, nil
}

func (p ProgramDoc) flatten(c *Content) {
	c.Programs = append(c.Programs, Program{
		ID: p.ID, Type: p.Type, State: p.State, Name: p.Name, Key: p.Key,
		Tempo: p.Tempo, Config: p.Config, Memes: append([]string(nil), p.Memes...),
	})
	for _, v := range p.Voices {
		vt, _ := ParseInstrumentType(v.Type)
		c.Voices = append(c.Voices, ProgramVoice{ID: v.ID, ProgramID: p.ID, Type: vt, Name: v.Name, Order: v.Order})
		for _, t := range v.Tracks {
			c.Tracks = append(c.Tracks, ProgramVoiceTrack{ID: t.ID, ProgramID: p.ID, VoiceID: v.ID, Name: t.Name, Order: t.Order})
		}
	}
	for _, s := range p.Sequences {
		c.Sequences = append(c.Sequences, ProgramSequence{
			ID: s.ID, ProgramID: p.ID, Name: s.Name, Key: s.Key, Total: s.Total, Intensity: s.Intensity,
		})
		for _, ch := range s.Chords {
			c.Chords = append(c.Chords, ProgramSequenceChord{
				ID: ch.ID, ProgramID: p.ID, SequenceID: s.ID, Name: ch.Name, Position: ch.Position,
			})
			for typ, notes := range ch.Voicings {
				it, _ := ParseInstrumentType(typ)
				c.Voicings = append(c.Voicings, ProgramSequenceChordVoicing{
					ID: ch.ID + "-" + string(it), ProgramID: p.ID, ChordID: ch.ID, Type: it, Notes: notes,
				})
			}
		}
		for _, pat := range s.Patterns {
			c.Patterns = append(c.Patterns, ProgramSequencePattern{
				ID: pat.ID, ProgramID: p.ID, SequenceID: s.ID, VoiceID: pat.Voice, Name: pat.Name, Total: pat.Total,
			})
			for _, e := range pat.Events {
				c.Events = append(c.Events, ProgramSequencePatternEvent{
					ID: e.ID, ProgramID: p.ID, PatternID: pat.ID, TrackID: e.Track,
					Position: e.Position, Duration: e.Duration, Velocity: e.Velocity, Tones: e.Tones,
				})
			}
		}
	}
	for _, b := range p.Bindings {
		c.Bindings = append(c.Bindings, ProgramSequenceBinding{
			ID: b.ID, ProgramID: p.ID, SequenceID: b.Sequence, Offset: b.Offset, Memes: append([]string(nil), b.Memes...),
		})
	}
}

func (inst InstrumentDoc) flatten(c *Content) {
	it, _ := ParseInstrumentType(inst.Type)
	c.Instruments = append(c.Instruments, Instrument{
		ID: inst.ID, Type: it, Mode: inst.Mode, State: inst.State, Name: inst.Name,
		Volume: inst.Volume, Config: inst.Config, Memes: append([]string(nil), inst.Memes...),
	})
	for _, a := range inst.Audios {
		c.InstrumentAudios = append(c.InstrumentAudios, InstrumentAudio{
			ID: a.ID, InstrumentID: inst.ID, Name: a.Name, Event: a.Event, Tones: a.Tones,
			Intensity: a.Intensity, Volume: a.Volume, Tempo: a.Tempo, TotalBeats: a.TotalBeats,
			TransientSeconds: a.TransientSeconds, Waveform: a.Waveform,
		})
	}
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.TrimSpace(v)] = true
	}
	return out
}
