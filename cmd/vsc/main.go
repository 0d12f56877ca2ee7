// Command vsc compiles, inspects and runs visual scripts.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nodeforge/vscript/compiler"
	"github.com/nodeforge/vscript/dis"
	"github.com/nodeforge/vscript/graph"
	"github.com/nodeforge/vscript/script"
	"github.com/nodeforge/vscript/wasm"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "vsc",
		Short:         "Visual script compiler and runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(compileCommand())
	root.AddCommand(disCommand())
	root.AddCommand(runCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func loadGraph(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return graph.Deserialize(f)
}

func useColor(cmd *cobra.Command) bool {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return !noColor
}

func compileCommand() *cobra.Command {
	var output string
	var toWasm bool
	cmd := &cobra.Command{
		Use:   "compile <graph>",
		Short: "Compile a graph to a runnable artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}

			out, err := os.Create(output)
			if err != nil {
				return err
			}
			defer out.Close()

			var diags error
			if toWasm {
				var module []byte
				module, diags = wasm.Compile(g)
				if err := wasm.Save(out, module); err != nil {
					return err
				}
			} else {
				art, cerr := compiler.Compile(g)
				if art == nil {
					return cerr
				}
				diags = cerr
				if err := art.Save(out); err != nil {
					return err
				}
			}

			if diags != nil {
				for _, n := range g.Nodes {
					if n.Diag() == "" {
						continue
					}
					fmt.Fprintf(os.Stderr, "%s node %d (%s): %s\n",
						color.YellowString("warning:"), n.ID(), n.Type(), n.Diag())
				}
				return fmt.Errorf("compiled with diagnostics, artifact must not be trusted")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "out.scr", "Output file")
	cmd.Flags().BoolVar(&toWasm, "wasm", false, "Emit a binary module instead of bytecode")
	return cmd
}

func disCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis <artifact>",
		Short: "Disassemble a compiled artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			art, err := script.Load(f)
			if err != nil {
				return err
			}

			opts := []dis.Option{dis.WithColor(useColor(cmd))}
			for name, offset := range map[string]uint32{
				"start":       art.Start,
				"update":      art.Update,
				"onMouseMove": art.MouseMove,
				"onKeyEvent":  art.KeyInput,
			} {
				if offset != script.NoEntry {
					opts = append(opts, dis.WithEntry(name, offset))
				}
			}
			return dis.Disassemble(os.Stdout, art.Bytecode, opts...)
		},
	}
	return cmd
}

func runCommand() *cobra.Command {
	var frames int
	var dt float32
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run <artifact>",
		Short: "Run a compiled artifact against a tracing world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			art, err := script.Load(f)
			if err != nil {
				return err
			}

			log := zerolog.New(zerolog.ConsoleWriter{
				Out:     os.Stderr,
				NoColor: !useColor(cmd),
			}).With().Timestamp().Logger()
			if !verbose {
				log = log.Level(zerolog.InfoLevel)
			}

			world := &tracingWorld{log: log}
			rt := script.NewRuntime(world, script.WithLogger(log))
			inst := rt.Attach(1, art)
			for i := 0; i < frames; i++ {
				rt.Update(dt)
			}

			for i, v := range art.Variables {
				ev := log.Info().Str("name", v.Name)
				if v.Type == graph.Float {
					ev = ev.Float32("value", inst.VariableFloat(uint32(i)))
				} else {
					ev = ev.Uint32("value", inst.Variable(uint32(i)))
				}
				ev.Msg("variable")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 1, "Number of update frames to run")
	cmd.Flags().Float32Var(&dt, "dt", 1.0/60, "Frame time delta in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log attach/detach events")
	return cmd
}

// tracingWorld logs every foreign call instead of mutating real state.
// Property reads return zero.
type tracingWorld struct {
	log zerolog.Logger
}

func (w *tracingWorld) SetYaw(entity uint32, yaw float32) {
	w.log.Info().Uint32("entity", entity).Float32("yaw", yaw).Msg("set_yaw")
}

func (w *tracingWorld) SetPropertyFloat(entity, property uint32, value float32) {
	w.log.Info().Uint32("entity", entity).
		Uint32("property", property).Float32("value", value).Msg("set_property")
}

func (w *tracingWorld) GetPropertyFloat(entity, property uint32) float32 {
	w.log.Info().Uint32("entity", entity).Uint32("property", property).Msg("get_property")
	return 0
}

func (w *tracingWorld) CallMethod(entity, method uint32, args []uint32) {
	w.log.Info().Uint32("entity", entity).
		Uint32("method", method).Uints32("args", args).Msg("call_method")
}
