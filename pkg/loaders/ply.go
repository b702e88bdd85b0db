// Package loaders reads meshes from files into scene trees
package loaders

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/df07/go-scene-raytracer/pkg/core"
	"github.com/df07/go-scene-raytracer/pkg/log"
	"github.com/df07/go-scene-raytracer/pkg/scene"
)

var logger = log.New("loaders")

// PLYMesh is the indexed geometry read from a PLY file. Normals and UVs
// are empty unless every vertex carries them.
type PLYMesh struct {
	Positions []core.Vec3
	Normals   []core.Vec3
	UVs       []core.Vec2
	Indices   []int // Triangle indices, 3 per triangle
}

// Mesh converts the data into a scene mesh
func (m *PLYMesh) Mesh(name string, mat *scene.Material) scene.Mesh {
	return scene.Mesh{
		Name:      name,
		Positions: m.Positions,
		Normals:   m.Normals,
		UVs:       m.UVs,
		Indices:   m.Indices,
		Material:  mat,
	}
}

// Bounds returns the box around every vertex
func (m *PLYMesh) Bounds() core.AABB {
	return core.NewAABBFromPoints(m.Positions...)
}

// plyProperty is a property definition in the PLY header
type plyProperty struct {
	name      string
	typ       string // Scalar type, or the item type of a list
	countType string // Set for list properties only
}

func (p plyProperty) isList() bool { return p.countType != "" }

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   string // ascii, binary_little_endian or binary_big_endian
	elements []plyElement
}

// LoadPLY reads a PLY file
func LoadPLY(filename string) (*PLYMesh, error) {
	startTime := time.Now()

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening PLY file: %w", err)
	}
	defer file.Close()

	mesh, err := ReadPLY(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	logger.Infof("loaded %s: %d vertices, %d triangles in %v",
		filename, len(mesh.Positions), len(mesh.Indices)/3, time.Since(startTime))
	return mesh, nil
}

// ReadPLY parses ASCII and binary PLY data. Polygons are split into
// triangle fans; elements other than vertex and face are skipped.
func ReadPLY(r io.Reader) (*PLYMesh, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	header, err := parsePLYHeader(br)
	if err != nil {
		return nil, fmt.Errorf("parsing PLY header: %w", err)
	}

	var values valueReader
	switch header.format {
	case "ascii":
		scanner := bufio.NewScanner(br)
		scanner.Split(bufio.ScanWords)
		values = &asciiValues{scanner: scanner}
	case "binary_little_endian":
		values = &binaryValues{r: br, order: binary.LittleEndian}
	case "binary_big_endian":
		values = &binaryValues{r: br, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("unsupported PLY format: %q", header.format)
	}

	mesh := &PLYMesh{}
	for _, el := range header.elements {
		switch el.name {
		case "vertex":
			err = readVertices(values, el, mesh)
		case "face":
			err = readFaces(values, el, mesh)
		default:
			err = skipElement(values, el)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s data: %w", el.name, err)
		}
	}

	for _, idx := range mesh.Indices {
		if idx < 0 || idx >= len(mesh.Positions) {
			return nil, fmt.Errorf("face index %d out of range (%d vertices)", idx, len(mesh.Positions))
		}
	}
	return mesh, nil
}

// parsePLYHeader consumes the header up to and including end_header
func parsePLYHeader(r *bufio.Reader) (*plyHeader, error) {
	header := &plyHeader{}
	first := true

	for {
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, errors.New("missing end_header")
			}
			return nil, err
		}
		line = strings.TrimSpace(line)

		if first {
			if line != "ply" {
				return nil, errors.New("not a PLY file")
			}
			first = false
			continue
		}
		if line == "end_header" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "format":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid format line: %q", line)
			}
			header.format = parts[1]
		case "comment", "obj_info":
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element line: %q", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("invalid element count: %s", parts[2])
			}
			header.elements = append(header.elements, plyElement{name: parts[1], count: count})
		case "property":
			if len(header.elements) == 0 {
				return nil, fmt.Errorf("property before any element: %q", line)
			}
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, err
			}
			el := &header.elements[len(header.elements)-1]
			el.props = append(el.props, prop)
		default:
			return nil, fmt.Errorf("unknown header keyword %q", parts[0])
		}
	}

	if header.format == "" {
		return nil, errors.New("missing format line")
	}
	return header, nil
}

func parsePLYProperty(parts []string) (plyProperty, error) {
	if len(parts) >= 1 && parts[0] == "list" {
		if len(parts) < 4 {
			return plyProperty{}, errors.New("invalid list property definition")
		}
		prop := plyProperty{countType: parts[1], typ: parts[2], name: parts[3]}
		if typeSize(prop.countType) == 0 || typeSize(prop.typ) == 0 {
			return plyProperty{}, fmt.Errorf("unknown type in list property %s", prop.name)
		}
		return prop, nil
	}
	if len(parts) < 2 {
		return plyProperty{}, errors.New("invalid property definition")
	}
	prop := plyProperty{typ: parts[0], name: parts[1]}
	if typeSize(prop.typ) == 0 {
		return plyProperty{}, fmt.Errorf("unknown type %q for property %s", prop.typ, prop.name)
	}
	return prop, nil
}

func readVertices(values valueReader, el plyElement, mesh *PLYMesh) error {
	index := func(names ...string) int {
		for i, p := range el.props {
			for _, n := range names {
				if p.name == n && !p.isList() {
					return i
				}
			}
		}
		return -1
	}
	xi, yi, zi := index("x"), index("y"), index("z")
	if xi < 0 || yi < 0 || zi < 0 {
		return errors.New("vertex element lacks x, y or z")
	}
	nxi, nyi, nzi := index("nx"), index("ny"), index("nz")
	hasNormals := nxi >= 0 && nyi >= 0 && nzi >= 0
	ui, vi := index("u", "s", "texture_u"), index("v", "t", "texture_v")
	hasUVs := ui >= 0 && vi >= 0

	mesh.Positions = make([]core.Vec3, 0, el.count)
	if hasNormals {
		mesh.Normals = make([]core.Vec3, 0, el.count)
	}
	if hasUVs {
		mesh.UVs = make([]core.Vec2, 0, el.count)
	}

	row := make([]float64, len(el.props))
	for i := 0; i < el.count; i++ {
		for j, p := range el.props {
			if p.isList() {
				if err := skipList(values, p); err != nil {
					return err
				}
				continue
			}
			v, err := values.read(p.typ)
			if err != nil {
				return fmt.Errorf("vertex %d: %w", i, err)
			}
			row[j] = v
		}

		mesh.Positions = append(mesh.Positions, core.NewVec3(row[xi], row[yi], row[zi]))
		if hasNormals {
			mesh.Normals = append(mesh.Normals, core.NewVec3(row[nxi], row[nyi], row[nzi]))
		}
		if hasUVs {
			mesh.UVs = append(mesh.UVs, core.NewVec2(row[ui], row[vi]))
		}
	}
	return nil
}

func readFaces(values valueReader, el plyElement, mesh *PLYMesh) error {
	mesh.Indices = make([]int, 0, el.count*3)
	polygon := make([]int, 0, 4)

	for i := 0; i < el.count; i++ {
		for _, p := range el.props {
			if !p.isList() || (p.name != "vertex_indices" && p.name != "vertex_index") {
				if err := skipProperty(values, p); err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				continue
			}

			n, err := values.read(p.countType)
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			polygon = polygon[:0]
			for k := 0; k < int(n); k++ {
				v, err := values.read(p.typ)
				if err != nil {
					return fmt.Errorf("face %d: %w", i, err)
				}
				polygon = append(polygon, int(v))
			}

			// Fan around the first vertex; points and lines are dropped
			for k := 2; k < len(polygon); k++ {
				mesh.Indices = append(mesh.Indices, polygon[0], polygon[k-1], polygon[k])
			}
		}
	}
	return nil
}

func skipElement(values valueReader, el plyElement) error {
	for i := 0; i < el.count; i++ {
		for _, p := range el.props {
			if err := skipProperty(values, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func skipProperty(values valueReader, p plyProperty) error {
	if p.isList() {
		return skipList(values, p)
	}
	_, err := values.read(p.typ)
	return err
}

func skipList(values valueReader, p plyProperty) error {
	n, err := values.read(p.countType)
	if err != nil {
		return err
	}
	for k := 0; k < int(n); k++ {
		if _, err := values.read(p.typ); err != nil {
			return err
		}
	}
	return nil
}

// typeSize returns the binary size of a PLY scalar type, 0 if unknown
func typeSize(typ string) int {
	switch typ {
	case "char", "int8", "uchar", "uint8":
		return 1
	case "short", "int16", "ushort", "uint16":
		return 2
	case "int", "int32", "uint", "uint32", "float", "float32":
		return 4
	case "double", "float64":
		return 8
	}
	return 0
}

// valueReader decodes one scalar of the given PLY type
type valueReader interface {
	read(typ string) (float64, error)
}

type asciiValues struct {
	scanner *bufio.Scanner
}

func (a *asciiValues) read(typ string) (float64, error) {
	if !a.scanner.Scan() {
		if err := a.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	v, err := strconv.ParseFloat(a.scanner.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", typ, a.scanner.Text())
	}
	return v, nil
}

type binaryValues struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *binaryValues) read(typ string) (float64, error) {
	size := typeSize(typ)
	if size == 0 {
		return 0, fmt.Errorf("unknown type %q", typ)
	}
	data := b.buf[:size]
	if _, err := io.ReadFull(b.r, data); err != nil {
		return 0, err
	}

	switch typ {
	case "char", "int8":
		return float64(int8(data[0])), nil
	case "uchar", "uint8":
		return float64(data[0]), nil
	case "short", "int16":
		return float64(int16(b.order.Uint16(data))), nil
	case "ushort", "uint16":
		return float64(b.order.Uint16(data)), nil
	case "int", "int32":
		return float64(int32(b.order.Uint32(data))), nil
	case "uint", "uint32":
		return float64(b.order.Uint32(data)), nil
	case "float", "float32":
		return float64(math.Float32frombits(b.order.Uint32(data))), nil
	default:
		return math.Float64frombits(b.order.Uint64(data)), nil
	}
}
