package animation

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/qmuntal/gltf"
)

// LoadLibrary opens a glTF/GLB model and matches its animations to states.
func LoadLibrary(path string, keywords map[State][]string) (*Library, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	anims, err := SourceAnimations(doc)
	if err != nil {
		return nil, err
	}
	if len(anims) == 0 {
		return nil, fmt.Errorf("no animations in %s", path)
	}
	return MatchAnimations(anims, keywords), nil
}

// SourceAnimations lists the animations of doc with their durations. A
// clip's duration is the largest keyframe time over all of its samplers.
func SourceAnimations(doc *gltf.Document) ([]SourceAnimation, error) {
	out := make([]SourceAnimation, 0, len(doc.Animations))
	for i, anim := range doc.Animations {
		var maxTime float64
		for _, sampler := range anim.Samplers {
			t, err := accessorMax(doc, int(sampler.Input))
			if err != nil {
				return nil, fmt.Errorf("animation %d (%s): %w", i, anim.Name, err)
			}
			if t > maxTime {
				maxTime = t
			}
		}
		name := anim.Name
		if name == "" {
			name = fmt.Sprintf("animation_%d", i)
		}
		out = append(out, SourceAnimation{
			Name:     name,
			Duration: time.Duration(maxTime * float64(time.Second)),
		})
	}
	return out, nil
}

// accessorMax returns the largest scalar of a keyframe-time accessor.
// Sampler inputs must carry min/max; files that omit them are scanned.
func accessorMax(doc *gltf.Document, idx int) (float64, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return 0, fmt.Errorf("accessor %d out of range", idx)
	}
	acc := doc.Accessors[idx]
	if len(acc.Max) > 0 {
		return float64(acc.Max[0]), nil
	}
	if acc.BufferView == nil {
		return 0, nil
	}

	view := doc.BufferViews[*acc.BufferView]
	buffer := doc.Buffers[view.Buffer]
	data, err := bufferData(buffer)
	if err != nil {
		return 0, err
	}

	offset := int(view.ByteOffset) + int(acc.ByteOffset)
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = 4
	}
	count := int(acc.Count)
	if offset+(count-1)*stride+4 > len(data) {
		return 0, fmt.Errorf("accessor %d exceeds buffer", idx)
	}

	var maxTime float64
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint32(data[offset+i*stride:])
		if v := float64(math.Float32frombits(bits)); v > maxTime {
			maxTime = v
		}
	}
	return maxTime, nil
}

func bufferData(buffer *gltf.Buffer) ([]byte, error) {
	if len(buffer.Data) > 0 {
		return buffer.Data, nil
	}
	if buffer.URI == "" {
		return nil, fmt.Errorf("buffer has no URI and no embedded data")
	}
	if len(buffer.URI) > 5 && buffer.URI[:5] == "data:" {
		return nil, fmt.Errorf("data URI not supported")
	}
	data, err := os.ReadFile(buffer.URI)
	if err != nil {
		return nil, fmt.Errorf("read buffer file: %w", err)
	}
	return data, nil
}
