package scene

import (
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

var defaultModelColor = color.RGBA{R: 0xa0, G: 0xa0, B: 0xa0, A: 0xff}

// ModelVertex is a render model vertex.
type ModelVertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// RenderModel is the mesh and diffuse texture drawn at a tracked device's
// pose.
type RenderModel struct {
	Name     string
	Vertices []ModelVertex
	Indices  []uint16
	Texture  *MipChain
}

type modelVertexKey struct {
	position, normal, uv int
}

type modelBuilder struct {
	decoder *obj.Decoder
	model   *RenderModel
	unique  map[modelVertexKey]uint16
}

func (b *modelBuilder) addVertex(face obj.Face, faceIndex int) error {
	key := modelVertexKey{position: face.Vertices[faceIndex], normal: -1, uv: -1}
	if faceIndex < len(face.Normals) && face.Normals[faceIndex]*3+2 < len(b.decoder.Normals) && face.Normals[faceIndex] >= 0 {
		key.normal = face.Normals[faceIndex]
	}
	if faceIndex < len(face.Uvs) && face.Uvs[faceIndex]*2+1 < len(b.decoder.Uvs) && face.Uvs[faceIndex] >= 0 {
		key.uv = face.Uvs[faceIndex]
	}

	index, exists := b.unique[key]
	if !exists {
		if len(b.model.Vertices) > math.MaxUint16 {
			return errors.Newf("render model %s has more than %d vertices", b.model.Name, math.MaxUint16+1)
		}

		positions := b.decoder.Vertices
		if key.position < 0 || key.position*3+2 >= len(positions) {
			return errors.Newf("render model %s references missing vertex %d", b.model.Name, key.position)
		}

		vert := ModelVertex{Position: mgl32.Vec3{
			positions[key.position*3],
			positions[key.position*3+1],
			positions[key.position*3+2],
		}}
		if key.normal >= 0 {
			vert.Normal = mgl32.Vec3{
				b.decoder.Normals[key.normal*3],
				b.decoder.Normals[key.normal*3+1],
				b.decoder.Normals[key.normal*3+2],
			}
		}
		if key.uv >= 0 {
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[key.uv*2],
				1.0 - b.decoder.Uvs[key.uv*2+1],
			}
		}

		index = uint16(len(b.model.Vertices))
		b.model.Vertices = append(b.model.Vertices, vert)
		b.unique[key] = index
	}

	b.model.Indices = append(b.model.Indices, index)
	return nil
}

// DecodeRenderModel triangulates every face of an OBJ mesh into an indexed
// triangle list. materials may be nil. The texture is left for the caller.
func DecodeRenderModel(name string, mesh, materials io.Reader) (*RenderModel, error) {
	model, _, err := decodeRenderModel(name, mesh, materials)
	return model, err
}

func decodeRenderModel(name string, mesh, materials io.Reader) (*RenderModel, *obj.Decoder, error) {
	if materials == nil {
		materials = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(mesh, materials)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decode render model %s", name)
	}

	builder := &modelBuilder{
		decoder: decoder,
		model:   &RenderModel{Name: name},
		unique:  make(map[modelVertexKey]uint16),
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// Fan-triangulate polygons.
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					err = builder.addVertex(face, corner)
					if err != nil {
						return nil, nil, err
					}
				}
			}
		}
	}

	if len(builder.model.Indices) == 0 {
		return nil, nil, errors.Newf("render model %s has no triangles", name)
	}

	return builder.model, decoder, nil
}

// diffuseTexture returns the first diffuse map used by a face of the mesh.
func diffuseTexture(decoder *obj.Decoder) string {
	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			material, ok := decoder.Materials[face.Material]
			if ok && material != nil && material.MapKd != "" {
				return material.MapKd
			}
		}
	}
	return ""
}

// LoadRenderModel reads <dir>/<name>.obj, its optional .mtl and the diffuse
// texture the material names. A model without a texture is drawn flat gray.
func LoadRenderModel(dir, name string) (*RenderModel, error) {
	meshFile, err := os.Open(filepath.Join(dir, name+".obj"))
	if err != nil {
		return nil, errors.Wrapf(err, "open render model %s", name)
	}
	defer meshFile.Close()

	var materials io.Reader
	matFile, err := os.Open(filepath.Join(dir, name+".mtl"))
	if err == nil {
		defer matFile.Close()
		materials = matFile
	}

	model, decoder, err := decodeRenderModel(name, meshFile, materials)
	if err != nil {
		return nil, err
	}

	texturePath := diffuseTexture(decoder)
	if texturePath == "" {
		model.Texture, err = BuildMipChain(SolidTexture(defaultModelColor))
		return model, err
	}

	textureFile, err := os.Open(filepath.Join(dir, texturePath))
	if err != nil {
		log.Printf("render model %s: texture %s unavailable, drawing untextured: %v", name, texturePath, err)
		model.Texture, err = BuildMipChain(SolidTexture(defaultModelColor))
		return model, err
	}
	defer textureFile.Close()

	img, err := DecodeRGBA(textureFile)
	if err != nil {
		return nil, errors.Wrapf(err, "render model %s", name)
	}
	model.Texture, err = BuildMipChain(img)
	return model, err
}
