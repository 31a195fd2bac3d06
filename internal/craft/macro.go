package craft

import (
	"fmt"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/fabricator"
)

// macro chooses the macro program and the binding offset it sits at.
func (c *crafter) macro() error {
	f := c.f
	src := f.Source()
	prev, hasPrev := f.PreviousChoice(content.ProgramMacro)

	var (
		program    content.Program
		found      bool
		overridden bool
	)
	if id := f.Overrides().MacroProgramID; id != "" {
		program, found = src.Program(id)
		if found && program.Type == content.ProgramMacro {
			overridden = true
		} else {
			found = false
			f.ReportMissing(fabricator.EntityProgram, fmt.Sprintf("macro override %q", id))
		}
	}
	if !found {
		switch f.Type() {
		case chain.SegmentContinue, chain.SegmentNextMain:
			if !hasPrev {
				break
			}
			program, found = src.Program(prev.ProgramID)
			if !found {
				return fabricator.Errorf("prior macro program %q no longer resolves", prev.ProgramID)
			}
		case chain.SegmentInitial:
			program, found = c.chooseProgram(content.ProgramMacro, "", nil)
		default:
			avoid := ""
			if hasPrev {
				avoid = prev.ProgramID
			}
			program, found = c.chooseProgram(content.ProgramMacro, avoid, nil)
		}
	}
	if !found {
		program, found = c.chooseProgram(content.ProgramMacro, "", nil)
	}
	if !found {
		f.ReportMissing(fabricator.EntityProgram, "Macro-type program")
		return nil
	}

	offsets := src.AvailableOffsets(program.ID)
	if len(offsets) == 0 {
		f.ReportMissing(fabricator.EntityProgramSequence, fmt.Sprintf("binding of macro program %s", program.ID))
		return nil
	}
	offset := offsets[0]
	switch {
	case overridden:
		if len(offsets) > 1 {
			offset = offsets[1]
		}
	case hasPrev && prev.ProgramID == program.ID && f.Type() != chain.SegmentInitial && f.Type() != chain.SegmentNextMacro:
		b, ok := src.Binding(prev.ProgramSequenceBindingID)
		if !ok {
			return fabricator.Errorf("prior macro binding %q no longer resolves", prev.ProgramSequenceBindingID)
		}
		offset = b.Offset
		if f.Type() == chain.SegmentNextMain {
			offset, _ = src.NextOffset(program.ID, b.Offset)
		}
	}

	binding, ok := c.pickBinding(program.ID, offset)
	if !ok {
		f.ReportMissing(fabricator.EntityProgramSequence, fmt.Sprintf("macro program %s at offset %d", program.ID, offset))
		return nil
	}
	_, err := f.Put(chain.SegmentChoice{
		ProgramType:              content.ProgramMacro,
		ProgramID:                program.ID,
		ProgramSequenceID:        binding.SequenceID,
		ProgramSequenceBindingID: binding.ID,
		DeltaIn:                  chain.DeltaUnlimited,
		DeltaOut:                 chain.DeltaUnlimited,
	}, false)
	return err
}

// pickBinding draws one of the bindings sharing an offset.
func (c *crafter) pickBinding(programID string, offset int) (content.ProgramSequenceBinding, bool) {
	bindings := c.f.Source().BindingsAtOffset(programID, offset)
	if len(bindings) == 0 {
		return content.ProgramSequenceBinding{}, false
	}
	return bindings[c.f.Rand().Intn(len(bindings))], true
}
