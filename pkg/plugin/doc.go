// Package plugin defines the collector plugin contract, the Base façade that
// records every collection action, and the registry plugins join from init().
//
// A plugin embeds *Base and implements Setup:
//
//	type demo struct{ *plugin.Base }
//
//	func (d *demo) Setup(ctx context.Context) error {
//		d.AddForbiddenPath("/etc/ssl/private/*")
//		d.AddCopySpec("/etc/ssl")
//		d.CollectExtOutput("hostname", collect.WithRootSymlink("hostname"))
//		return nil
//	}
//
//	func init() {
//		plugin.MustRegister("demo", func(name string, c *plugin.Commons) (plugin.Plugin, error) {
//			return &demo{Base: plugin.NewBase(name, c, plugin.Meta{Description: "demo"})}, nil
//		})
//	}
//
// Copies and commands declared in Setup run later, in declaration order, when
// the engine calls Execute.
package plugin
