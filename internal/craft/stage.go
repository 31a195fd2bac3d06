package craft

import (
	"fmt"
	"log/slog"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/fabricator"
)

// Stage is one step of the craft pipeline.
type Stage int

const (
	StageMacro Stage = iota
	StageMain
	StageBeat
	StageDetail
)

// Stages is the only order stages ever run in.
var Stages = []Stage{StageMacro, StageMain, StageBeat, StageDetail}

func (s Stage) String() string {
	switch s {
	case StageMacro:
		return "macro"
	case StageMain:
		return "main"
	case StageBeat:
		return "beat"
	case StageDetail:
		return "detail"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ProgramType is the program type a stage chooses.
func (s Stage) ProgramType() content.ProgramType {
	switch s {
	case StageMacro:
		return content.ProgramMacro
	case StageMain:
		return content.ProgramMain
	case StageBeat:
		return content.ProgramBeat
	}
	return content.ProgramDetail
}

// Input is everything a segment craft depends on.
type Input struct {
	Source    *content.SourceMaterial
	Chain     chain.Chain
	Template  config.TemplateConfig
	Prior     *chain.Segment
	Segment   chain.Segment
	Seed      int64
	Overrides fabricator.Overrides
	Scorer    Scorer
	Logger    *slog.Logger
}

// Output is a crafted segment and the content gaps met on the way.
type Output struct {
	Segment chain.Segment
	Missing []fabricator.Missing
}

type crafter struct {
	f      *fabricator.Fabricator
	scorer Scorer
}

// Craft runs every stage against a fresh fabricator and returns the Crafted
// segment. Errors are fabrication faults; Missing is filled either way.
func Craft(in Input) (Output, error) {
	f, err := fabricator.New(fabricator.Params{
		Source:    in.Source,
		Chain:     in.Chain,
		Template:  in.Template,
		Prior:     in.Prior,
		Segment:   in.Segment,
		Seed:      in.Seed,
		Overrides: in.Overrides,
		Logger:    in.Logger,
	})
	if err != nil {
		return Output{}, err
	}
	c := &crafter{f: f, scorer: in.Scorer}
	if c.scorer == nil {
		c.scorer = MemeScorer{}
	}
	for _, st := range Stages {
		if err := c.run(st); err != nil {
			return Output{Missing: f.Missing()}, fmt.Errorf("%s stage: %w", st, err)
		}
	}
	seg, err := f.Finish()
	if err != nil {
		return Output{Missing: f.Missing()}, err
	}
	f.Logger().Debug("segment crafted", "type", string(seg.Type), "choices", len(seg.Choices), "picks", len(seg.Picks))
	return Output{Segment: seg, Missing: f.Missing()}, nil
}

func (c *crafter) run(st Stage) error {
	switch st {
	case StageMacro:
		return c.macro()
	case StageMain:
		return c.main()
	case StageBeat:
		return c.beat()
	case StageDetail:
		return c.detail()
	}
	return fabricator.Errorf("unknown stage %d", int(st))
}
