// Package config holds the sample's settings, read from an optional TOML
// file and then from the command line.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// ErrHelp is returned by Parse when usage was requested.
var ErrHelp = errors.New("help requested")

type Config struct {
	// VulkanDebug enables the validation layer and debug messenger.
	VulkanDebug bool `toml:"vulkan_debug"`
	// NoPrintf discards all log output.
	NoPrintf bool `toml:"noprintf"`
	VSync    bool `toml:"vsync"`

	MSAA        int     `toml:"msaa"`
	SuperSample float32 `toml:"supersample"`
	CubeVolume  int     `toml:"cube_volume"`

	WindowWidth  int `toml:"window_width"`
	WindowHeight int `toml:"window_height"`

	ShaderDir      string `toml:"shader_dir"`
	Texture        string `toml:"texture"`
	RenderModelDir string `toml:"render_model_dir"`
	PipelineCache  string `toml:"pipeline_cache"`

	// Controllers is how many simulated hand controllers are tracked.
	Controllers int `toml:"controllers"`
}

func Default() Config {
	return Config{
		MSAA:           4,
		SuperSample:    1.0,
		CubeVolume:     20,
		WindowWidth:    1280,
		WindowHeight:   720,
		ShaderDir:      "shaders",
		Texture:        "",
		RenderModelDir: "models",
		PipelineCache:  "pipeline_cache.bin",
		Controllers:    2,
	}
}

// LoadFile overlays the settings present in a TOML file onto c.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer f.Close()

	return c.Decode(f)
}

func (c *Config) Decode(r io.Reader) error {
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(c)
	if err != nil {
		return errors.Wrap(err, "decode config")
	}
	return nil
}

// Parse builds a Config from the defaults, the file named by -config if
// present, and then every other flag in args. args excludes the program name.
func Parse(args []string) (Config, error) {
	cfg := Default()

	for i := 0; i < len(args); i++ {
		if args[i] == "-config" {
			if i+1 >= len(args) {
				return cfg, errors.New("-config requires a file name")
			}
			err := cfg.LoadFile(args[i+1])
			if err != nil {
				return cfg, err
			}
		}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", errors.Newf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		var err error
		switch arg {
		case "-vulkandebug":
			cfg.VulkanDebug = true
		case "-noprintf":
			cfg.NoPrintf = true
		case "-vsync":
			cfg.VSync = true
		case "-config":
			_, err = value()
		case "-msaa":
			cfg.MSAA, err = intValue(value)
		case "-supersample":
			var s string
			s, err = value()
			if err == nil {
				var f float64
				f, err = strconv.ParseFloat(s, 32)
				cfg.SuperSample = float32(f)
			}
		case "-cubevolume":
			cfg.CubeVolume, err = intValue(value)
		case "-controllers":
			cfg.Controllers, err = intValue(value)
		case "-shaders":
			cfg.ShaderDir, err = value()
		case "-texture":
			cfg.Texture, err = value()
		case "-models":
			cfg.RenderModelDir, err = value()
		case "-pipelinecache":
			cfg.PipelineCache, err = value()
		case "-help", "--help", "-h":
			return cfg, ErrHelp
		default:
			return cfg, errors.Newf("unrecognized option: %s", arg)
		}
		if err != nil {
			return cfg, errors.Wrapf(err, "parse %s", arg)
		}
	}

	return cfg, cfg.Validate()
}

func intValue(value func() (string, error)) (int, error) {
	s, err := value()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func (c Config) Validate() error {
	if c.MSAA < 1 || c.MSAA > 64 || c.MSAA&(c.MSAA-1) != 0 {
		return errors.Newf("msaa must be a power of two from 1 to 64, got %d", c.MSAA)
	}
	if c.SuperSample <= 0 {
		return errors.Newf("supersample must be positive, got %g", c.SuperSample)
	}
	if c.CubeVolume < 1 || c.CubeVolume > 100 {
		return errors.Newf("cube volume must be from 1 to 100, got %d", c.CubeVolume)
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return errors.Newf("invalid companion window size %dx%d", c.WindowWidth, c.WindowHeight)
	}
	if c.Controllers < 0 || c.Controllers > 2 {
		return errors.Newf("controllers must be from 0 to 2, got %d", c.Controllers)
	}
	if c.ShaderDir == "" {
		return errors.New("shader directory is required")
	}
	return nil
}

// PrintUsage writes the option list.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "\nOptions")
	fmt.Fprintln(w, "\t-config FILE\tread settings from a TOML file first")
	fmt.Fprintln(w, "\t-vulkandebug\tenable the validation layer")
	fmt.Fprintln(w, "\t-noprintf\tdiscard log output")
	fmt.Fprintln(w, "\t-vsync\t\tpresent with FIFO instead of mailbox")
	fmt.Fprintln(w, "\t-msaa N\t\tsamples per pixel for the eye targets (default 4)")
	fmt.Fprintln(w, "\t-supersample S\tscale the recommended eye size (default 1.0)")
	fmt.Fprintln(w, "\t-cubevolume N\tcubes along each axis (default 20)")
	fmt.Fprintln(w, "\t-controllers N\tsimulated controllers, 0 to 2 (default 2)")
	fmt.Fprintln(w, "\t-shaders DIR\tdirectory holding the SPIR-V shaders")
	fmt.Fprintln(w, "\t-texture FILE\tcube texture, a checkerboard when empty")
	fmt.Fprintln(w, "\t-models DIR\tdirectory holding OBJ render models")
	fmt.Fprintln(w, "\t-pipelinecache FILE\tpipeline cache location, empty to disable")
}
