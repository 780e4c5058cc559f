package visualization

import (
	"fmt"
	"sort"

	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/visual"
)

// Factory creates a visualizer instance.
type Factory func() (visual.Visualizer, error)

// Options configure visualization plugin registration.
type Options struct {
	Factories     map[string]Factory
	SetVisualizer func(visual.Visualizer)
}

// Register registers one plugin per visual mode. Loading a plugin builds the
// visualizer and hands it to SetVisualizer.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if opts.SetVisualizer == nil {
		return fmt.Errorf("SetVisualizer callback is required")
	}
	modes := make([]string, 0, len(opts.Factories))
	for mode, factory := range opts.Factories {
		if factory != nil {
			modes = append(modes, mode)
		}
	}
	sort.Strings(modes)
	for _, mode := range modes {
		factory := opts.Factories[mode]
		desc := hooks.PluginDescriptor{
			Name:        PluginName(mode),
			Category:    hooks.PluginCategoryVisualization,
			Description: fmt.Sprintf("%s visualization", mode),
		}
		if err := reg.RegisterGlobal(desc.Name, desc, func(*hooks.PluginBroker) error {
			v, err := factory()
			if err != nil {
				return err
			}
			opts.SetVisualizer(v)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// PluginName returns the registry name of a visual mode.
func PluginName(mode string) string {
	return "visualization/" + mode
}
