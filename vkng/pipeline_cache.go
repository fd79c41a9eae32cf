package vkng

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	// PipelineCacheHeaderSize is the size of a version one cache header.
	PipelineCacheHeaderSize = 16 + 16

	pipelineCacheHeaderVersionOne = 1
)

// PipelineCacheHeader is the header the driver writes at the front of
// pipeline cache data:
//
//	offset  size  meaning
//	     0     4  length of the header in bytes
//	     4     4  header version
//	     8     4  vendor ID
//	    12     4  device ID
//	    16    16  pipeline cache UUID
type PipelineCacheHeader struct {
	HeaderLength  uint32
	HeaderVersion uint32
	VendorID      uint32
	DeviceID      uint32
	CacheUUID     uuid.UUID
}

// PipelineCacheIdentity is what the running driver expects a cache header to
// contain.
type PipelineCacheIdentity struct {
	VendorID  uint32
	DeviceID  uint32
	CacheUUID uuid.UUID
}

func ParsePipelineCacheHeader(data []byte) (PipelineCacheHeader, error) {
	var header PipelineCacheHeader
	if len(data) < PipelineCacheHeaderSize {
		return header, errors.Newf("pipeline cache is %d bytes, shorter than its header", len(data))
	}

	err := binary.Read(bytes.NewReader(data), common.ByteOrder, &header)
	if err != nil {
		return header, errors.Wrap(err, "read pipeline cache header")
	}
	return header, nil
}

// Validate reports every way the header disagrees with the running driver.
func (h PipelineCacheHeader) Validate(identity PipelineCacheIdentity) error {
	var err error

	if h.HeaderLength < PipelineCacheHeaderSize {
		err = errors.CombineErrors(err, errors.Newf("bad header length %#x", h.HeaderLength))
	}
	if h.HeaderVersion != pipelineCacheHeaderVersionOne {
		err = errors.CombineErrors(err, errors.Newf("unsupported header version %#x", h.HeaderVersion))
	}
	if h.VendorID != identity.VendorID {
		err = errors.CombineErrors(err, errors.Newf("vendor ID %#x, driver expects %#x", h.VendorID, identity.VendorID))
	}
	if h.DeviceID != identity.DeviceID {
		err = errors.CombineErrors(err, errors.Newf("device ID %#x, driver expects %#x", h.DeviceID, identity.DeviceID))
	}
	if h.CacheUUID != identity.CacheUUID {
		err = errors.CombineErrors(err, errors.Newf("UUID %s, driver expects %s", h.CacheUUID, identity.CacheUUID))
	}

	return err
}

// PipelineCache is a pipeline cache optionally persisted to a file.
type PipelineCache struct {
	driver core1_0.DeviceDriver
	Handle core1_0.PipelineCache
	path   string
}

// LoadPipelineCache creates a pipeline cache seeded from path. A missing or
// stale file is not an error: the cache starts empty and a stale file is
// removed so the next Save repopulates it. An empty path disables
// persistence.
func LoadPipelineCache(driver core1_0.DeviceDriver, identity PipelineCacheIdentity, path string) (*PipelineCache, error) {
	var initialData []byte

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			log.Printf("pipeline cache miss: %s", path)
		} else if err != nil {
			return nil, errors.Wrapf(err, "read pipeline cache %s", path)
		} else {
			initialData = data
		}
	}

	if initialData != nil {
		header, err := ParsePipelineCacheHeader(initialData)
		if err == nil {
			err = header.Validate(identity)
		}
		if err != nil {
			log.Printf("discarding pipeline cache %s: %v", path, err)
			initialData = nil
			_ = os.Remove(path)
		}
	}

	cache, _, err := driver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}

	return &PipelineCache{driver: driver, Handle: cache, path: path}, nil
}

// Save writes the cache's current contents back to its file.
func (c *PipelineCache) Save() error {
	if c.path == "" {
		return nil
	}

	data, _, err := c.driver.GetPipelineCacheData(c.Handle)
	if err != nil {
		return errors.Wrap(err, "get pipeline cache data")
	}

	err = os.WriteFile(c.path, data, 0666)
	if err != nil {
		return errors.Wrapf(err, "write pipeline cache %s", c.path)
	}

	log.Printf("pipeline cache written to %s", c.path)
	return nil
}

func (c *PipelineCache) Destroy() {
	if c.Handle.Initialized() {
		c.driver.DestroyPipelineCache(c.Handle, nil)
		c.Handle = core1_0.PipelineCache{}
	}
}
