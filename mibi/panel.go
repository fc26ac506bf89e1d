package mibi

import "fmt"

// PanelEntry is one antibody of a staining panel.
type PanelEntry struct {
	Target string
	Mass   float64
}

// Panel is the ordered list of targets and label masses used for a run.
type Panel []PanelEntry

// Validate checks that every entry has a target and a positive mass and that
// neither is repeated.
func (p Panel) Validate() error {
	targets := make(map[string]bool, len(p))
	masses := make(map[float64]bool, len(p))
	for _, entry := range p {
		if err := NewChannel(entry.Target, entry.Mass).validate(); err != nil {
			return err
		}
		if targets[entry.Target] {
			return fmt.Errorf("%w: panel lists target %q twice", ErrValidation, entry.Target)
		}
		if masses[entry.Mass] {
			return fmt.Errorf("%w: panel lists mass %v twice", ErrValidation, entry.Mass)
		}
		targets[entry.Target] = true
		masses[entry.Mass] = true
	}
	return nil
}

// Channels returns the panel as channel identities, in panel order.
func (p Panel) Channels() []Channel {
	channels := make([]Channel, len(p))
	for i, entry := range p {
		channels[i] = NewChannel(entry.Target, entry.Mass)
	}
	return channels
}

// ApplyPanel renames every channel whose mass appears in panel to the panel's
// target for that mass. Channels without a mass, or whose mass is not in the
// panel, keep their target.
func (img *Image) ApplyPanel(panel Panel) error {
	if err := panel.Validate(); err != nil {
		return err
	}

	byMass := make(map[float64]string, len(panel))
	for _, entry := range panel {
		byMass[entry.Mass] = entry.Target
	}

	channels := img.Channels()
	for i, c := range channels {
		if c.Mass == nil {
			continue
		}
		if target, ok := byMass[*c.Mass]; ok {
			channels[i].Target = target
		}
	}

	if err := validateChannels(channels); err != nil {
		return err
	}

	img.channels = channels
	return nil
}
