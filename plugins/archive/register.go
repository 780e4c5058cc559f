package archive

import (
	"fmt"

	"github.com/Readm/commit_sim/archive"
	"github.com/Readm/commit_sim/hooks"
)

// PluginName is the registry name of the run archive plugin.
const PluginName = "archive/pebble"

// Options configure the archive plugin.
type Options struct {
	Store *archive.Store
	// OnArchived is called after each report is written.
	OnArchived func(archive.RunReport)
}

// Register adds the run archive plugin to reg. Once loaded, every graded
// transaction is written to the store.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if opts.Store == nil {
		return fmt.Errorf("archive store is required")
	}
	desc := hooks.PluginDescriptor{
		Name:        PluginName,
		Category:    hooks.PluginCategoryStorage,
		Description: "stores graded run reports in pebble",
	}
	return reg.RegisterGlobal(desc.Name, desc, func(b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		b.RegisterTxCompleted(func(ctx *hooks.TxCompletedContext) error {
			r, err := opts.Store.Archive(ctx.Summary)
			if err != nil {
				return fmt.Errorf("archive run: %w", err)
			}
			if opts.OnArchived != nil {
				opts.OnArchived(r)
			}
			return nil
		})
		return nil
	})
}
