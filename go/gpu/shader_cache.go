package gpu

import (
	"encoding/binary"
	"log"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ST3ALth/xenia/go/models"
)

// HashMicrocode is the shader cache key: XXH64 (seed 0) of the words in
// host byte order.
func HashMicrocode(words []uint32) uint64 {
	d := xxhash.New()
	var buf [4]byte
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf[:], w)
		d.Write(buf[:])
	}
	return d.Sum64()
}

// ShaderCache translates each distinct microcode program once. It is safe
// for concurrent use.
type ShaderCache struct {
	Config *models.Config

	log        *log.Logger
	dev        Device
	translator Translator
	store      *ShaderStore

	mu      sync.Mutex
	shaders map[uint64]*Shader
}

// NewShaderCache creates a cache. store may be nil.
func NewShaderCache(cfg *models.Config, dev Device, translator Translator, store *ShaderStore) *ShaderCache {
	cfg = cfg.Init()
	return &ShaderCache{
		Config:     cfg,
		log:        cfg.Logger(),
		dev:        dev,
		translator: translator,
		store:      store,
		shaders:    make(map[uint64]*Shader),
	}
}

// LoadShader returns the shader for the given microcode, translating it on
// first sight. The shader is published before translation, so a program that
// fails is never retried; callers must check IsValid.
func (c *ShaderCache) LoadShader(t ShaderType, guestAddr uint32, words []uint32) *Shader {
	hash := HashMicrocode(words)
	c.mu.Lock()
	if s, ok := c.shaders[hash]; ok {
		c.mu.Unlock()
		<-s.ready
		return s
	}
	s := newShader(t, guestAddr, hash, words)
	c.shaders[hash] = s
	c.mu.Unlock()

	defer close(s.ready)
	c.prepare(s)
	return s
}

func (c *ShaderCache) prepare(s *Shader) {
	stored := false
	if c.store != nil {
		ok, err := c.store.Load(s)
		if err != nil {
			c.log.Printf("shader store read error: %v", err)
		}
		stored = ok
	}
	if !stored {
		if c.translator == nil {
			c.log.Printf("no shader translator; marking %s as ignored", s)
			return
		}
		if err := c.translator.Translate(s); err != nil {
			c.log.Printf("Shader translation failed; marking shader as ignored: %v", err)
			return
		}
	}
	module, err := c.dev.CreateShaderModule(s.Binary)
	if err != nil {
		c.log.Printf("Shader preparation failed; marking shader as ignored: %v", err)
		return
	}
	s.module = module
	s.valid = true

	if c.store != nil && !stored {
		if err := c.store.Save(s); err != nil {
			c.log.Printf("shader store write error: %v", err)
		}
	}
	c.Config.Debugf("Generated %s shader at 0x%08X (%db):\n%s", s.Type, s.GuestAddress, len(s.Data)*4, s.Disassembly)
	if c.Config.DumpShadersPath != "" {
		if err := s.Dump(c.Config.DumpShadersPath, "vk"); err != nil {
			c.log.Printf("shader dump error: %v", err)
		}
	}
}

// Lookup returns a loaded shader by microcode hash.
func (c *ShaderCache) Lookup(hash uint64) (*Shader, bool) {
	c.mu.Lock()
	s, ok := c.shaders[hash]
	c.mu.Unlock()
	if ok {
		<-s.ready
	}
	return s, ok
}

func (c *ShaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.shaders)
}

// Shutdown destroys every shader module and forgets all shaders.
func (c *ShaderCache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.shaders {
		<-s.ready
		if s.module != 0 {
			c.dev.DestroyShaderModule(s.module)
			s.module = 0
		}
		s.valid = false
	}
	c.shaders = make(map[uint64]*Shader)
}
