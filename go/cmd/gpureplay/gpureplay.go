package gpureplay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ST3ALth/xenia/go/cmd"
	"github.com/ST3ALth/xenia/go/gpu"
	"github.com/ST3ALth/xenia/go/gpu/vulkan"
)

func Main(args []string) int {
	c := cmd.NewCmd("gpu-replay")
	c.Args = "<trace.xgrt>"
	var dump, geometry, standIn *string
	var persist, useVulkan *bool
	c.SetupFlags = func() error {
		dump = c.Flags.String("dump", "", "dump translated shaders into this directory")
		geometry = c.Flags.String("geometry", "", "directory of precompiled geometry shaders")
		persist = c.Flags.Bool("persist", false, "load and save the shader store and pipeline cache")
		useVulkan = c.Flags.Bool("vulkan", false, "compile pipelines on the first Vulkan device instead of the null device")
		standIn = c.Flags.String("standin", "", "directory with vertex.spv and pixel.spv to use for every shader (required with -vulkan)")
		return nil
	}
	c.Main = func(args []string) error {
		if len(args) != 1 {
			return errors.New("need a trace file")
		}
		cfg := c.Config
		cfg.DumpShadersPath = *dump
		cfg.GeometryShaderPath = *geometry

		var store *gpu.ShaderStore
		if *persist {
			dir, err := cfg.GpuCacheDir()
			if err != nil {
				return err
			}
			cfg.CacheDir = dir
			if store, err = gpu.OpenShaderStore(filepath.Join(dir, "shaders"), nil); err != nil {
				return err
			}
			defer store.Close()
		}
		var geom map[gpu.GeometryKind][]byte
		if cfg.GeometryShaderPath != "" {
			var err error
			if geom, err = gpu.LoadGeometryShaders(cfg.GeometryShaderPath); err != nil {
				return err
			}
		}

		var (
			dev        gpu.Device          = gpu.NewNullDevice()
			translator gpu.Translator      = gpu.PassthroughTranslator{}
			rec        gpu.CommandRecorder = &gpu.Recorder{}
			setLayouts [2]gpu.DescriptorSetLayout
			pass       gpu.RenderPass
		)
		if *useVulkan {
			if *standIn == "" {
				return errors.New("-vulkan needs -standin shaders")
			}
			t, err := gpu.LoadStandInShaders(*standIn)
			if err != nil {
				return err
			}
			h, err := vulkan.NewHeadless()
			if err != nil {
				return err
			}
			defer h.Close()
			dev, translator, rec = h, t, h.CommandRecorder()
			setLayouts, pass = h.SetLayouts, h.RenderPass
		}
		regs := gpu.NewRegisterFile()
		shaders := gpu.NewShaderCache(cfg, dev, translator, store)
		defer shaders.Shutdown()
		pipelines, err := gpu.NewPipelineCache(cfg, regs, dev, setLayouts, geom)
		if err != nil {
			return err
		}
		rp := &gpu.Replayer{Regs: regs, Shaders: shaders, Pipelines: pipelines, Cmd: rec, RenderPass: pass}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r, err := gpu.NewTraceReader(f)
		if err != nil {
			return err
		}
		err = rp.Replay(r)
		if serr := pipelines.Shutdown(); serr != nil && err == nil {
			err = serr
		}
		fmt.Fprintf(os.Stdout, "%s", &rp.Stats)
		fmt.Fprintf(os.Stdout, "shaders: %d\n", shaders.Len())
		return err
	}
	return c.Run(args)
}

func init() {
	cmd.Register("gpu-replay", "replay a gpu trace through the shader and pipeline caches", Main)
}
