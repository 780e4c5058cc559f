package main

import (
	"fmt"

	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/plugins/visualization"
	"github.com/Readm/commit_sim/visual"
)

// selectVisualizer registers the web and none visual modes and loads the
// one cfg asks for. server is only needed for web mode.
func selectVisualizer(reg *hooks.Registry, cfg *Config, server *WebServer) (visual.Visualizer, error) {
	var chosen visual.Visualizer
	err := visualization.Register(reg, visualization.Options{
		Factories: map[string]visualization.Factory{
			"none": func() (visual.Visualizer, error) {
				return visual.NewNullVisualizer(), nil
			},
			"web": func() (visual.Visualizer, error) {
				if server == nil {
					return nil, fmt.Errorf("web mode needs a web server")
				}
				return NewWebVisualizer(server), nil
			},
		},
		SetVisualizer: func(v visual.Visualizer) { chosen = v },
	})
	if err != nil {
		return nil, err
	}
	if err := reg.LoadGlobal([]string{visualization.PluginName(cfg.VisualMode)}); err != nil {
		return nil, err
	}
	return chosen, nil
}
