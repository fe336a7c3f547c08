package models

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/shibukawa/configdir"
)

const (
	DefaultIndirectionBase = 0x80000000
	DefaultIndirectionSize = 0x20000000
	DefaultCodeCacheBase   = 0xA0000000
	DefaultCodeCacheSize   = 0x0FFFFFFF
)

type Config struct {
	// spill xmm6-xmm15 in the host/guest thunks
	SaveVectorRegisters bool

	IndirectionBase uint64
	IndirectionSize uint64
	CodeCacheBase   uint64
	CodeCacheSize   uint64

	CacheDir           string
	DumpShadersPath    string
	GeometryShaderPath string

	Color   bool
	Verbose bool
	Output  io.Writer

	logger *log.Logger
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.IndirectionBase == 0 {
		c.IndirectionBase = DefaultIndirectionBase
	}
	if c.IndirectionSize == 0 {
		c.IndirectionSize = DefaultIndirectionSize
	}
	if c.CodeCacheBase == 0 {
		c.CodeCacheBase = DefaultCodeCacheBase
	}
	if c.CodeCacheSize == 0 {
		c.CodeCacheSize = DefaultCodeCacheSize
	}
	return c
}

// Logger writes to c.Output. It is rebuilt if Output changes.
func (c *Config) Logger() *log.Logger {
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.logger == nil || c.logger.Writer() != c.Output {
		c.logger = log.New(c.Output, "", log.Lmicroseconds)
	}
	return c.logger
}

func (c *Config) Debugf(format string, a ...interface{}) {
	if c.Verbose {
		c.Logger().Printf(format, a...)
	}
}

// GpuCacheDir returns CacheDir, falling back to the per-user cache folder.
func (c *Config) GpuCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, os.MkdirAll(c.CacheDir, 0755)
	}
	dirs := configdir.New("xenia", "gpu")
	cache := dirs.QueryCacheFolder()
	if err := cache.MkdirAll(); err != nil {
		return "", err
	}
	return filepath.Clean(cache.Path), nil
}
